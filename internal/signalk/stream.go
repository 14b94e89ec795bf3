package signalk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// streamMessage is any message received on the stream: hello, delta or
// PUT response.
type streamMessage struct {
	// Hello
	Name string `json:"name,omitempty"`
	Self string `json:"self,omitempty"`

	// Delta
	Context string        `json:"context,omitempty"`
	Updates []deltaUpdate `json:"updates,omitempty"`

	// Request response
	RequestID  string `json:"requestId,omitempty"`
	State      string `json:"state,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message,omitempty"`
}

// putRequest is a PUT sent over the stream.
//
//	{"context": "vessels.self", "requestId": "...",
//	 "put": {"path": "electrical.switches.1.state", "value": 1}}
type putRequest struct {
	Context   string  `json:"context"`
	RequestID string  `json:"requestId"`
	Put       putBody `json:"put"`
}

type putBody struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// WritePath sends a value update for busContext and path tagged with
// source.
func (c *Client) WritePath(ctx context.Context, busContext, path string, value any, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", path, err)
	}

	msg, err := json.Marshal(deltaMessage{
		Context: busContext,
		Updates: []deltaUpdate{{
			SourceRef: source,
			Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
			Values:    []pathValueRaw{{Path: path, Value: raw}},
		}},
	})
	if err != nil {
		return fmt.Errorf("encoding delta: %w", err)
	}
	return c.enqueue(msg)
}

// PutPath sends a PUT request. done is called exactly once with the final
// response, or with a 504 failure after the put timeout. It is not called
// when PutPath returns an error.
func (c *Client) PutPath(ctx context.Context, busContext, path string, value any, done func(PutResult)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	requestID := uuid.NewString()
	msg, err := json.Marshal(putRequest{
		Context:   busContext,
		RequestID: requestID,
		Put:       putBody{Path: path, Value: value},
	})
	if err != nil {
		return fmt.Errorf("encoding put: %w", err)
	}

	c.puts.add(requestID, done)
	if err := c.enqueue(msg); err != nil {
		c.puts.remove(requestID)
		return err
	}

	c.logDebug("put sent", "request_id", requestID, "context", busContext, "path", path)
	return nil
}

// enqueue hands a message to the stream writer without blocking.
func (c *Client) enqueue(msg []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// streamLoop keeps the stream open until Close or ctx cancellation.
func (c *Client) streamLoop(ctx context.Context) {
	defer c.wg.Done()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.reconnects.Add(1)
		}

		err := c.session(ctx)
		c.connected.Store(false)

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.logWarn("signalk stream down, retrying", "error", err, "retry_in", c.reconnect)

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(c.reconnect):
		}
	}
}

// session runs one stream connection until it fails or the client closes.
func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	c.authorize(header)

	dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	conn, resp, err := c.dialer.DialContext(dialCtx, c.streamURL, header)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: stream returned %d", ErrUnauthorized, resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	// Drop messages queued for a previous connection.
	for len(c.send) > 0 {
		<-c.send
	}

	c.connected.Store(true)
	c.logInfo("signalk stream connected", "url", c.streamURL)

	writerDone := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx, conn, readerDone)
	}()

	err = c.readPump(conn)
	close(readerDone)
	<-writerDone
	return err
}

// readPump reads stream messages until the connection fails.
func (c *Client) readPump(conn *websocket.Conn) error {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logDebug("signalk stream closed", "error", err)
			}
			return err
		}
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(data)
	}
}

// writePump writes queued messages and pings until the reader stops, the
// client closes or ctx is cancelled.
func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, readerDone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	closeConn := func() {
		//nolint:errcheck // Best-effort close message
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}

	for {
		select {
		case <-readerDone:
			return
		case <-c.done:
			closeConn()
			return
		case <-ctx.Done():
			closeConn()
			return
		case msg := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// handleMessage classifies one stream message.
func (c *Client) handleMessage(data []byte) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logDebug("ignoring unparseable stream message", "error", err)
		return
	}

	if msg.Self != "" {
		c.setSelf(msg.Self)
		c.logInfo("signalk hello", "server", msg.Name, "self", msg.Self)
	}

	if msg.RequestID != "" {
		res := PutResult{
			RequestID:  msg.RequestID,
			State:      msg.State,
			StatusCode: msg.StatusCode,
			Message:    msg.Message,
		}
		if !c.puts.resolve(res) {
			c.logDebug("response for unknown request", "request_id", msg.RequestID)
		}
		return
	}

	if len(msg.Updates) == 0 {
		return
	}

	c.onDeltaMu.RLock()
	callback := c.onDelta
	c.onDeltaMu.RUnlock()

	wire := deltaMessage{Context: msg.Context, Updates: msg.Updates}
	for _, d := range wire.Flatten(c.selfContext()) {
		c.deltasRx.Add(1)
		if callback == nil || !c.debounce.Allow(d) {
			continue
		}
		callback(d)
	}
}
