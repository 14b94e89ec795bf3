package signalk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client defaults.
const (
	// DefaultPutTimeout resolves unanswered PUT requests as failed.
	DefaultPutTimeout = 30 * time.Second

	// DefaultReconnectInterval is the fixed delay between stream attempts.
	DefaultReconnectInterval = 5 * time.Second

	// requestTimeout bounds REST calls when the caller sets no deadline.
	requestTimeout = 10 * time.Second

	// sendBufferSize is the outbound stream message buffer.
	sendBufferSize = 256

	// maxMessageSize bounds a single inbound stream message.
	maxMessageSize = 1 << 20

	// pingInterval is how often the stream is pinged.
	pingInterval = 30 * time.Second

	// pongWait is how long a ping may go unanswered.
	pongWait = 10 * time.Second

	// apiPath is the REST API root.
	apiPath = "/signalk/v1/api"

	// streamPath is the WebSocket stream endpoint.
	streamPath = "/signalk/v1/stream"
)

// Logger is the logging interface used by the client.
// This is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Client.
type Options struct {
	// URL is the server base, e.g. "http://localhost:3000".
	URL string

	// Token is an optional bearer token.
	Token string

	// Debounce is the per-path coalescing window for inbound deltas.
	Debounce time.Duration

	// PutTimeout resolves unanswered PUTs as failed. Default: 30s.
	PutTimeout time.Duration

	// ReconnectInterval is the delay between stream attempts. Default: 5s.
	ReconnectInterval time.Duration

	// HTTPClient is used for REST calls. Default: http.DefaultClient.
	HTTPClient *http.Client

	// Logger is optional.
	Logger Logger
}

// Client talks to a Signal K server over REST (reads, self identity) and
// the WebSocket stream (deltas in, value updates and PUTs out).
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	streamURL string
	token     string
	http      *http.Client
	dialer    *websocket.Dialer
	debounce  *Debouncer
	puts      *pendingPuts
	reconnect time.Duration
	logger    Logger

	selfMu sync.RWMutex
	selfID string

	onDelta   func(Delta)
	onDeltaMu sync.RWMutex

	send      chan []byte
	connected atomic.Bool

	// Statistics
	deltasRx   atomic.Uint64
	reconnects atomic.Uint64

	// Lifecycle
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup
}

// New creates a client. Call Start to open the delta stream.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("signalk url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing signalk url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("signalk url must be http or https, got %q", base.Scheme)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	putTimeout := opts.PutTimeout
	if putTimeout <= 0 {
		putTimeout = DefaultPutTimeout
	}
	reconnect := opts.ReconnectInterval
	if reconnect <= 0 {
		reconnect = DefaultReconnectInterval
	}

	return &Client{
		baseURL:   base,
		streamURL: streamURL(base),
		token:     opts.Token,
		http:      httpClient,
		dialer:    websocket.DefaultDialer,
		debounce:  NewDebouncer(opts.Debounce),
		puts:      newPendingPuts(putTimeout),
		reconnect: reconnect,
		logger:    opts.Logger,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}, nil
}

// streamURL derives the stream endpoint from the base URL. All contexts are
// subscribed so deltas of other vessels reach the bridge too.
func streamURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + streamPath
	u.RawQuery = url.Values{"subscribe": {"all"}}.Encode()
	return u.String()
}

// SetOnDelta sets the callback for inbound deltas. It is called from the
// stream goroutine.
func (c *Client) SetOnDelta(callback func(Delta)) {
	c.onDeltaMu.Lock()
	c.onDelta = callback
	c.onDeltaMu.Unlock()
}

// SelfID returns the bus identity, e.g. "urn:mrn:imo:mmsi:230099999".
// It is empty until Self has succeeded or the stream has said hello.
func (c *Client) SelfID() string {
	c.selfMu.RLock()
	defer c.selfMu.RUnlock()
	return c.selfID
}

func (c *Client) setSelf(self string) {
	id := strings.TrimPrefix(self, "vessels.")
	c.selfMu.Lock()
	c.selfID = id
	c.selfMu.Unlock()
}

// selfContext returns "vessels.<selfId>", used for deltas without context.
func (c *Client) selfContext() string {
	return "vessels." + c.SelfID()
}

// Start opens the delta stream and keeps it open until Close, reconnecting
// at a fixed interval.
func (c *Client) Start(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("signalk client already started")
	}

	c.wg.Add(1)
	go c.streamLoop(ctx)
	return nil
}

// Close stops the stream. Pending PUTs are abandoned.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.puts.abandon()
		c.connected.Store(false)
	})
	return nil
}

// IsConnected returns true while the stream is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Stats holds client counters.
type Stats struct {
	Connected   bool   `json:"connected"`
	DeltasRx    uint64 `json:"deltas_rx"`
	Reconnects  uint64 `json:"reconnects"`
	PendingPuts int    `json:"pending_puts"`
}

// Stats returns the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:   c.connected.Load(),
		DeltasRx:    c.deltasRx.Load(),
		Reconnects:  c.reconnects.Load(),
		PendingPuts: c.puts.len(),
	}
}

func (c *Client) authorize(header http.Header) {
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}
