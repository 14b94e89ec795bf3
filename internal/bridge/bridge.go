package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
)

// Bridge operation constants.
const (
	// DefaultKeepaliveTTL is the lease lifetime when none is configured.
	DefaultKeepaliveTTL = 60 * time.Second

	// DefaultSweepInterval is how often expired leases are removed.
	DefaultSweepInterval = time.Second

	// messageQueueSize bounds inbound MQTT messages awaiting dispatch.
	messageQueueSize = 256

	// deltaQueueSize bounds bus deltas awaiting dispatch.
	deltaQueueSize = 1024

	// readTimeout bounds one bus read.
	readTimeout = 10 * time.Second
)

// Transport is the MQTT side of the bridge.
// This is satisfied by *mqtt.Client.
type Transport interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic filter.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Host is the Signal K side of the bridge.
// This is satisfied by *signalk.Client.
type Host interface {
	// ReadPath returns the JSON node at a full path such as
	// "vessels.self.navigation.position", or nil when there is none.
	ReadPath(ctx context.Context, path string) (json.RawMessage, error)

	// WritePath injects a value update tagged with source.
	WritePath(ctx context.Context, busContext, path string, value any, source string) error

	// PutPath sends a PUT request; done is called once with its outcome.
	PutPath(ctx context.Context, busContext, path string, value any, done func(signalk.PutResult)) error

	// IsConnected returns true while the delta stream is up.
	IsConnected() bool
}

// CommandJournal records accepted commands and PUT outcomes.
// It is optional - if nil, the bridge operates without a journal.
type CommandJournal interface {
	// RecordCommand records a write or put before it is forwarded.
	RecordCommand(action, busContext, path string, value any)

	// RecordPutResult records the outcome of a put.
	RecordPutResult(busContext, path string, result signalk.PutResult)
}

// Logger is the logging interface used by the bridge.
// This is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// SelfID is the bus identity, e.g. "urn:mrn:imo:mmsi:230099999".
	SelfID string

	// Marker is the second topic level. Default: "signalk".
	Marker string

	// KeepaliveTTL is the lease lifetime. Default: 60s.
	KeepaliveTTL time.Duration

	// SweepInterval is the lease expiry period. Default: 1s.
	SweepInterval time.Duration

	// HealthInterval is how often status is evaluated and reported.
	HealthInterval time.Duration

	// QoS is used for subscriptions and publishes.
	QoS byte

	// CommandRate limits reads, writes and puts per second. Zero disables it.
	CommandRate float64

	// CommandBurst is the limiter bucket size.
	CommandBurst int

	// Transport is the MQTT client.
	Transport Transport

	// Host is the Signal K client.
	Host Host

	// Journal is optional.
	Journal CommandJournal

	// Metrics is optional; it receives stats every HealthInterval.
	Metrics MetricsWriter

	// Logger is optional.
	Logger Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Bridge moves deltas from Signal K to MQTT and commands from MQTT to
// Signal K.
//
// Thread Safety: the exported methods are safe for concurrent use. The lease
// registry is owned by the dispatch loop started in Start.
type Bridge struct {
	selfID   string
	topics   Topics
	ttl      time.Duration
	sweep    time.Duration
	qos      byte
	now      func() time.Time
	limiter  *rate.Limiter
	leases   *Registry
	stats    counters
	health   *HealthReporter
	logger   Logger
	loggerMu sync.RWMutex

	transport Transport
	host      Host
	journal   CommandJournal

	// Inputs of the dispatch loop
	messages  chan inboundMessage
	deltas    chan signalk.Delta
	events    chan connectionEvent
	snapshots chan chan []Lease

	started  atomic.Bool
	stopped  atomic.Bool
	mqttSeen atomic.Bool // set on the first broker connection

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx
}

type inboundMessage struct {
	topic   string
	payload []byte
}

type connectionEvent struct {
	connected bool
	err       error
}

// New creates a new bridge instance.
// Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.SelfID == "" {
		return nil, fmt.Errorf("self id is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Host == nil {
		return nil, fmt.Errorf("host is required")
	}

	marker := opts.Marker
	if marker == "" {
		marker = "signalk"
	}
	ttl := opts.KeepaliveTTL
	if ttl <= 0 {
		ttl = DefaultKeepaliveTTL
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if opts.CommandRate > 0 {
		burst := opts.CommandBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.CommandRate), burst)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		selfID:    opts.SelfID,
		topics:    Topics{Marker: marker, SystemID: DeriveSystemID(opts.SelfID)},
		ttl:       ttl,
		sweep:     sweep,
		qos:       opts.QoS,
		now:       now,
		limiter:   limiter,
		leases:    NewRegistry(),
		logger:    opts.Logger,
		transport: opts.Transport,
		host:      opts.Host,
		journal:   opts.Journal,
		messages:  make(chan inboundMessage, messageQueueSize),
		deltas:    make(chan signalk.Delta, deltaQueueSize),
		events:    make(chan connectionEvent, 8),
		snapshots: make(chan chan []Lease),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Interval: opts.HealthInterval,
		Bridge:   b,
		Metrics:  opts.Metrics,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// SystemID returns the short id used in topics.
func (b *Bridge) SystemID() string {
	return b.topics.SystemID
}

// Topics returns the topic builder for this bridge.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Start begins bridge operation: the dispatch loop and health reporting.
// If the transport is already connected the connect handling runs at once;
// otherwise it runs on the first HandleConnect.
func (b *Bridge) Start(ctx context.Context) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("bridge already started")
	}

	b.wg.Add(1)
	go b.run(ctx)

	b.health.Start(ctx)

	if b.transport.IsConnected() {
		b.HandleConnect()
	}

	b.logInfo("bridge started",
		"system_id", b.topics.SystemID,
		"marker", b.topics.Marker,
		"keepalive_ttl", b.ttl)

	return nil
}

// Stop gracefully shuts down the bridge. In-flight puts are not awaited.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		close(b.done)

		// Cancel bridge context to abort in-flight reads
		b.ctxCancel()

		b.health.Stop()

		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// HandleConnect queues the (re)connect handling. Wire it to the transport's
// connect callback.
func (b *Bridge) HandleConnect() {
	b.postEvent(connectionEvent{connected: true})
}

// HandleDisconnect queues a connection loss. Leases are kept.
func (b *Bridge) HandleDisconnect(err error) {
	b.postEvent(connectionEvent{connected: false, err: err})
}

func (b *Bridge) postEvent(ev connectionEvent) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// HandleMessage queues an inbound MQTT message. It blocks while the queue
// is full so the transport applies backpressure.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	msg := inboundMessage{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case b.messages <- msg:
	case <-b.done:
	}
}

// HandleDelta queues a bus delta. Deltas arriving while the queue is full
// are dropped.
func (b *Bridge) HandleDelta(d signalk.Delta) {
	b.stats.deltasReceived.Add(1)
	select {
	case b.deltas <- d:
	case <-b.done:
	default:
		b.stats.deltasDropped.Add(1)
		b.logDebug("delta queue full, dropping", "context", d.Context, "path", d.Path)
	}
}

// Leases returns a copy of the live leases, read by the dispatch loop.
func (b *Bridge) Leases(ctx context.Context) ([]Lease, error) {
	reply := make(chan []Lease, 1)
	select {
	case b.snapshots <- reply:
	case <-b.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case leases := <-reply:
		return leases, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the dispatch loop. It is the only goroutine touching the registry.
func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.events:
			if ev.connected {
				b.onConnected()
			} else {
				b.onDisconnected(ev.err)
			}
		case msg := <-b.messages:
			b.dispatchCommand(msg.topic, msg.payload)
		case d := <-b.deltas:
			b.dispatchDelta(d)
		case <-ticker.C:
			b.sweepLeases()
		case reply := <-b.snapshots:
			reply <- b.leases.Snapshot()
		}
	}
}

// onConnected subscribes the inbound filters and publishes the retained
// capability and serial topics.
func (b *Bridge) onConnected() {
	for _, filter := range b.topics.InboundFilters() {
		if err := b.transport.Subscribe(filter, b.qos, b.HandleMessage); err != nil {
			b.logError("failed to subscribe", err, "topic", filter)
			continue
		}
		b.logDebug("subscribed", "topic", filter)
	}

	b.publish(b.topics.Keepalive(), []byte("1"), true)
	b.publish(b.topics.Serial(), []byte(b.topics.SystemID), true)

	b.mqttSeen.Store(true)
	b.logInfo("mqtt connected, bridge ready", "system_id", b.topics.SystemID)
	b.health.Evaluate()
}

func (b *Bridge) onDisconnected(err error) {
	b.logWarn("mqtt disconnected, bridge degraded", "error", err, "leases", b.leases.Len())
	b.health.Evaluate()
}

func (b *Bridge) sweepLeases() {
	removed := b.leases.Sweep(b.now())
	if removed > 0 {
		b.logDebug("expired leases", "removed", removed, "remaining", b.leases.Len())
	}
	b.stats.leases.Store(int64(b.leases.Len()))
}

// publish sends a message if the transport is connected and drops it
// otherwise.
func (b *Bridge) publish(topic string, payload []byte, retained bool) bool {
	if !b.transport.IsConnected() {
		b.stats.publishDropped.Add(1)
		return false
	}
	if err := b.transport.Publish(topic, payload, b.qos, retained); err != nil {
		b.stats.publishDropped.Add(1)
		b.logDebug("publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// allowCommand applies the optional command rate limit.
func (b *Bridge) allowCommand() bool {
	if b.limiter == nil || b.limiter.Allow() {
		return true
	}
	b.stats.commandsThrottled.Add(1)
	return false
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// isStopping reports whether err came from the bridge shutting down.
func (b *Bridge) isStopping(err error) bool {
	return errors.Is(err, context.Canceled) && b.stopped.Load()
}
