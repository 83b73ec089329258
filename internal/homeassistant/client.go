package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/list-to-entities/internal/infrastructure/config"
)

// Connection constants.
const (
	// handshakeTimeout bounds dial plus the auth exchange.
	handshakeTimeout = 10 * time.Second

	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// defaultReconnectInterval is used when reconnect.initial_delay is unset.
	defaultReconnectInterval = time.Second

	// defaultMaxReconnectInterval is used when reconnect.max_delay is unset.
	defaultMaxReconnectInterval = time.Minute

	// maxMessageSize caps inbound frames; get_states on large installs is big.
	maxMessageSize = 32 << 20

	websocketPath = "/api/websocket"
)

// Logger is the logging interface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is a Home Assistant WebSocket API client.
//
// It authenticates with a long-lived access token, matches results to
// requests by id, and delivers subscribed events to handlers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Event handlers run on the read goroutine and must not block.
//
// Reconnection:
//   - When the connection drops, pending requests fail with ErrNotConnected.
//   - The client redials with exponential backoff, re-authenticates and
//     restores every subscription, then invokes the OnReconnect callback.
type Client struct {
	cfg    config.HomeAssistantConfig
	wsURL  string
	dialer *websocket.Dialer
	logger Logger

	conn      *websocket.Conn
	connected bool
	haVersion string
	connMu    sync.RWMutex

	writeMu sync.Mutex

	nextID atomic.Int64

	pending   map[int64]chan inbound
	pendingMu sync.Mutex

	// subs is keyed by the subscription id currently known to Home Assistant.
	subs  map[int64]*Subscription
	subMu sync.Mutex

	onReconnect  func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	lookups singleflight.Group

	reconnects atomic.Uint64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Connect dials Home Assistant, authenticates, and starts the read loop.
//
// Parameters:
//   - ctx: Bounds the initial dial and auth exchange
//   - cfg: Home Assistant configuration from config.yaml
//   - logger: Optional logger (nil discards)
//
// Returns:
//   - *Client: Authenticated client ready for use
//   - error: ErrConnectionFailed or ErrAuthFailed (wrapped)
func Connect(ctx context.Context, cfg config.HomeAssistantConfig, logger Logger) (*Client, error) {
	wsURL, err := WebSocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		cfg:   cfg,
		wsURL: wsURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		logger:  logger,
		pending: make(map[int64]chan inbound),
		subs:    make(map[int64]*Subscription),
		closed:  make(chan struct{}),
	}

	conn, version, err := c.dialAndAuth(ctx)
	if err != nil {
		return nil, err
	}
	c.setConn(conn, version)

	c.wg.Add(1)
	go c.run(conn)

	return c, nil
}

// WebSocketURL derives the WebSocket endpoint from a Home Assistant base URL.
//
// Example: "http://ha.local:8123" -> "ws://ha.local:8123/api/websocket"
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: parsing url: %w", ErrConnectionFailed, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported url scheme %q", ErrConnectionFailed, u.Scheme)
	}

	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, websocketPath) {
		path += websocketPath
	}
	u.Path = path

	return u.String(), nil
}

// dialAndAuth opens a connection and completes the auth exchange.
func (c *Client) dialAndAuth(ctx context.Context) (*websocket.Conn, string, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	version, err := authenticate(ctx, conn, c.cfg.Token)
	if err != nil {
		conn.Close()
		return nil, "", err
	}

	conn.SetReadLimit(maxMessageSize)
	return conn, version, nil
}

// authenticate runs auth_required -> auth -> auth_ok|auth_invalid.
func authenticate(ctx context.Context, conn *websocket.Conn, token string) (string, error) {
	deadline, _ := ctx.Deadline()
	//nolint:errcheck // Best-effort deadline on handshake
	conn.SetReadDeadline(deadline)
	//nolint:errcheck // Best-effort deadline on handshake
	conn.SetWriteDeadline(deadline)
	defer func() {
		//nolint:errcheck // Clear handshake deadlines
		conn.SetReadDeadline(time.Time{})
		//nolint:errcheck // Clear handshake deadlines
		conn.SetWriteDeadline(time.Time{})
	}()

	var hello inbound
	if err := conn.ReadJSON(&hello); err != nil {
		return "", fmt.Errorf("%w: reading auth_required: %w", ErrConnectionFailed, err)
	}
	if hello.Type != typeAuthRequired {
		return "", fmt.Errorf("%w: unexpected first message %q", ErrConnectionFailed, hello.Type)
	}

	if err := conn.WriteJSON(authMessage{Type: typeAuth, AccessToken: token}); err != nil {
		return "", fmt.Errorf("%w: sending auth: %w", ErrConnectionFailed, err)
	}

	var reply inbound
	if err := conn.ReadJSON(&reply); err != nil {
		return "", fmt.Errorf("%w: reading auth reply: %w", ErrConnectionFailed, err)
	}

	switch reply.Type {
	case typeAuthOK:
		return reply.HAVersion, nil
	case typeAuthInvalid:
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return "", fmt.Errorf("%w: unexpected auth reply %q", ErrConnectionFailed, reply.Type)
	}
}

func (c *Client) setConn(conn *websocket.Conn, version string) {
	c.connMu.Lock()
	c.conn = conn
	c.connected = conn != nil
	if version != "" {
		c.haVersion = version
	}
	c.connMu.Unlock()
}

// run owns the connection lifecycle: read until failure, then reconnect.
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.readLoop(conn)
		if c.isClosed() {
			return
		}

		c.handleDisconnect(err)

		conn = c.reconnect()
		if conn == nil {
			return
		}

		c.wg.Add(1)
		go c.afterReconnect()
	}
}

// readLoop reads messages until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case typeResult, typePong:
			c.resolve(msg)
		case typeEvent:
			c.deliver(msg)
		default:
			c.logger.Debug("ignoring home assistant message", "type", msg.Type)
		}
	}
}

// resolve hands a result to the waiting request, if any.
func (c *Client) resolve(msg inbound) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- msg
	}
}

// failPending wakes every waiting request with a closed channel.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.failPending()

	if wasConnected {
		c.logger.Warn("home assistant connection lost, will attempt reconnection", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// reconnect redials with exponential backoff. It returns nil when the client
// was closed or the configured attempt limit was reached.
func (c *Client) reconnect() *websocket.Conn {
	backoff := time.Duration(c.cfg.Reconnect.InitialDelay) * time.Second
	if backoff <= 0 {
		backoff = defaultReconnectInterval
	}
	maxBackoff := time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxReconnectInterval
	}

	ctx, cancel := c.closeContext()
	defer cancel()

	for attempt := 1; ; attempt++ {
		select {
		case <-c.closed:
			return nil
		case <-time.After(backoff):
		}

		c.logger.Info("attempting home assistant reconnection", "attempt", attempt)

		conn, version, err := c.dialAndAuth(ctx)
		if err == nil {
			if c.isClosed() {
				conn.Close()
				return nil
			}
			c.setConn(conn, version)
			c.reconnects.Add(1)
			c.logger.Info("home assistant reconnected", "attempt", attempt, "ha_version", version)
			return conn
		}

		c.logger.Warn("home assistant reconnection failed", "attempt", attempt, "error", err)

		if errors.Is(err, ErrAuthFailed) {
			c.logger.Error("home assistant rejected the access token, giving up")
			c.shutdown()
			return nil
		}
		if limit := c.cfg.Reconnect.MaxAttempts; limit > 0 && attempt >= limit {
			c.logger.Error("home assistant reconnection attempts exhausted", "attempts", attempt)
			c.shutdown()
			return nil
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// closeContext returns a context cancelled when the client closes.
func (c *Client) closeContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// afterReconnect restores subscriptions and notifies the callback.
func (c *Client) afterReconnect() {
	defer c.wg.Done()

	ctx, cancel := c.closeContext()
	defer cancel()

	c.restoreSubscriptions(ctx)

	c.callbackMu.RLock()
	callback := c.onReconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// request sends a command and waits for its result. A zero msg.ID is
// assigned from the client's counter.
func (c *Client) request(ctx context.Context, msg outbound) (inbound, error) {
	if c.isClosed() {
		return inbound{}, ErrClosed
	}
	if !c.IsConnected() {
		return inbound{}, ErrNotConnected
	}

	if msg.ID == 0 {
		msg.ID = c.nextID.Add(1)
	}
	ch := make(chan inbound, 1)

	c.pendingMu.Lock()
	c.pending[msg.ID] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return inbound{}, err
	}

	timer := time.NewTimer(c.requestTimeout())
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return inbound{}, ErrNotConnected
		}
		if resp.Type == typeResult && !resp.Success {
			if resp.Error != nil {
				return resp, &RequestError{Code: resp.Error.Code, Message: resp.Error.Message}
			}
			return resp, ErrRequestFailed
		}
		return resp, nil
	case <-timer.C:
		return inbound{}, fmt.Errorf("%w: %s after %v", ErrTimeout, msg.Type, c.requestTimeout())
	case <-ctx.Done():
		return inbound{}, ctx.Err()
	case <-c.closed:
		return inbound{}, ErrClosed
	}
}

// write sends one JSON frame on the current connection.
func (c *Client) write(v any) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	//nolint:errcheck // Deadline failure surfaces as a write error
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

func (c *Client) requestTimeout() time.Duration {
	if d := c.cfg.GetRequestTimeout(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// Ping performs an application-level ping and waits for the pong.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, outbound{Type: typePing})
	return err
}

// HealthCheck reports whether the connection is up and answering pings.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("home assistant health check: %w", err)
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// HAVersion returns the Home Assistant version reported at auth time.
func (c *Client) HAVersion() string {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.haVersion
}

// Reconnects returns the number of successful reconnections.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// SetOnReconnect sets a callback invoked after every successful
// reconnection, once subscriptions are restored.
func (c *Client) SetOnReconnect(callback func()) {
	c.callbackMu.Lock()
	c.onReconnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// Done is closed once the client stops for good, either through Close or
// because reconnection gave up.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// shutdown marks the client closed and drops the connection.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.writeMu.Lock()
		//nolint:errcheck // Best-effort close frame
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.failPending()
}

// Close stops reconnection, closes the connection and waits for the
// background goroutines to exit.
func (c *Client) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

// decodeResult unmarshals a result body into v.
func decodeResult(resp inbound, v any) error {
	if len(resp.Result) == 0 {
		return fmt.Errorf("%w: empty result", ErrRequestFailed)
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		return fmt.Errorf("%w: decoding result: %w", ErrRequestFailed, err)
	}
	return nil
}
