package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/ngsiadapter/errors"
)

// ConnectionStatus is the state of the NATS connection
type ConnectionStatus int32

// Connection states
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var statusNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "circuit_open"}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

var (
	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = stderrors.New("not connected to NATS")
	// ErrCircuitOpen is returned by Connect while the breaker refuses attempts.
	ErrCircuitOpen = stderrors.New("circuit breaker is open")
)

// Stats is a snapshot of the client state
type Stats struct {
	Status      ConnectionStatus
	Failures    int
	LastFailure time.Time
	Backoff     time.Duration
	RTT         time.Duration
}

type settings struct {
	maxReconnects  int
	reconnectWait  time.Duration
	pingInterval   time.Duration
	timeout        time.Duration
	drainTimeout   time.Duration
	messageTimeout time.Duration

	name     string
	username string
	password string
	token    string
}

// Client holds one core NATS connection used for subscribing to probe
// subjects.
type Client struct {
	url      string
	logger   *slog.Logger
	settings settings
	breaker  *breaker
	metrics  *connMetrics
	onHealth func(healthy bool)

	status atomic.Int32

	mu     sync.Mutex
	conn   *nats.Conn
	subs   []*nats.Subscription
	closed bool
}

// NewClient creates a disconnected client for url
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:    url,
		logger: slog.Default(),
		settings: settings{
			maxReconnects:  -1,
			reconnectWait:  2 * time.Second,
			pingInterval:   30 * time.Second,
			timeout:        5 * time.Second,
			drainTimeout:   10 * time.Second,
			messageTimeout: 30 * time.Second,
		},
		breaker: newBreaker(defaultBreakerThreshold, defaultMaxBackoff),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "nats", "url", url)

	return c, nil
}

// URL returns the server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the connection state
func (c *Client) Status() ConnectionStatus {
	if c.breaker.open() {
		return StatusCircuitOpen
	}
	return ConnectionStatus(c.status.Load())
}

// IsHealthy reports whether the connection is up
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
	c.metrics.setStatus(s)
}

// Stats returns a snapshot of the connection and breaker state
func (c *Client) Stats() Stats {
	failures, last := c.breaker.failures()
	st := Stats{
		Status:      c.Status(),
		Failures:    failures,
		LastFailure: last,
		Backoff:     c.breaker.nextBackoff(),
	}
	if rtt, err := c.RTT(); err == nil {
		st.RTT = rtt
	}
	return st
}

func (c *Client) natsOptions() []nats.Option {
	s := c.settings
	opts := []nats.Option{
		nats.MaxReconnects(s.maxReconnects),
		nats.ReconnectWait(s.reconnectWait),
		nats.PingInterval(s.pingInterval),
		nats.Timeout(s.timeout),
		nats.DrainTimeout(s.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if s.username != "" && s.password != "" {
		opts = append(opts, nats.UserInfo(s.username, s.password))
	}
	if s.token != "" {
		opts = append(opts, nats.Token(s.token))
	}
	if s.name != "" {
		opts = append(opts, nats.Name(s.name))
	}
	return opts
}

// Connect dials the server. Failures count toward the breaker; while it is
// open Connect returns ErrCircuitOpen without dialing.
func (c *Client) Connect(ctx context.Context) error {
	if !c.breaker.allow() {
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "op", "Init")

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	opts := c.natsOptions()
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// a dial finishing after cancellation must not leak
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
		res.err = ctx.Err()
	}

	if res.err != nil {
		c.setStatus(StatusDisconnected)
		if wait := c.breaker.failure(); wait > 0 {
			c.metrics.setStatus(StatusCircuitOpen)
			c.logger.Warn("Circuit breaker opened", "op", "Init", "backoff", wait)
		}
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = res.conn
	c.closed = false
	c.mu.Unlock()

	c.breaker.success()
	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "op", "Init")
	c.notifyHealth(true, false)
	return nil
}

// Close unsubscribes, drains the connection within the context deadline and
// forgets the credentials. Further calls do nothing.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	c.subs = nil

	if conn := c.conn; conn != nil {
		c.conn = nil
		if err := c.drain(ctx, conn); err != nil {
			errs = append(errs, err)
			c.logger.Error("Drain failed, closing", "op", "Exit", "error", err)
		}
		conn.Close()
	}

	c.settings.username, c.settings.password, c.settings.token = "", "", ""
	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

func (c *Client) drain(ctx context.Context, conn *nats.Conn) error {
	wait := c.settings.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline))
	}

	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-time.After(wait):
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", wait), "Client", "Close", "drain")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain")
	}
}

func (c *Client) liveConn() (*nats.Conn, error) {
	if c.conn == nil || !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// RTT measures the round trip to the server
func (c *Client) RTT() (time.Duration, error) {
	c.mu.Lock()
	conn, err := c.liveConn()
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return conn.RTT()
}

// Subscribe calls handler for every message on subject. The handler context
// derives from ctx and is bounded by the message timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.liveConn()
	if err != nil {
		return err
	}

	timeout := c.settings.messageTimeout
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		c.metrics.received(subject)

		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapInvalid(err, "Client", "Subscribe", fmt.Sprintf("subscribe to %q", subject))
	}

	c.subs = append(c.subs, sub)
	c.logger.Debug("Subscribed", "op", "Subscribe", "subject", subject)
	return nil
}

// Publish sends data on subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.Lock()
	conn, err := c.liveConn()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return conn.Publish(subject, data)
}

// notifyHealth runs the health callback, asynchronously when called from a
// nats handler goroutine.
func (c *Client) notifyHealth(healthy, async bool) {
	if c.onHealth == nil {
		return
	}
	if async {
		go c.onHealth(healthy)
		return
	}
	c.onHealth(healthy)
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)
	c.logger.Warn("Disconnected from NATS", "op", "Reconnect", "error", err)
	c.notifyHealth(false, true)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.breaker.success()
	c.metrics.reconnected()
	c.logger.Info("Reconnected to NATS", "op", "Reconnect")
	c.notifyHealth(true, true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.notifyHealth(false, true)
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.logger.Error("NATS error", "subject", subject, "error", err)
}
