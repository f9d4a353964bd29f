package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/health"
	"github.com/c360/ngsiadapter/input"
	"github.com/c360/ngsiadapter/metric"
	"github.com/c360/ngsiadapter/pkg/retry"
	"github.com/c360/ngsiadapter/request"
)

// Endpoint is one UDP binding: datagrams received on Host:Port are parsed
// with the named parser.
type Endpoint struct {
	Host   string
	Port   int
	Parser string
}

// Address returns the host:port the endpoint binds to
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint in host:port:parser notation
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d:%s", e.Host, e.Port, e.Parser)
}

// ParseEndpoints parses a comma-separated list of host:port:parser items.
// An empty host or port takes the given defaults. Items without a parser
// name or with an invalid port are skipped and reported as warnings.
func ParseEndpoints(list, defaultHost string, defaultPort int) ([]Endpoint, []string) {
	var (
		endpoints []Endpoint
		warnings  []string
	)
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		elements := strings.Split(item, ":")

		ep := Endpoint{Host: defaultHost, Port: defaultPort}
		if elements[0] != "" {
			ep.Host = elements[0]
		}
		if len(elements) > 1 && elements[1] != "" {
			port, err := strconv.Atoi(elements[1])
			if err != nil || port < 0 || port > 65535 {
				warnings = append(warnings, fmt.Sprintf("Ignoring UDP endpoint %q: invalid port", item))
				continue
			}
			ep.Port = port
		}
		if len(elements) > 2 {
			ep.Parser = elements[2]
		}
		if ep.Parser == "" {
			warnings = append(warnings, fmt.Sprintf("Ignoring UDP endpoint %q: missing parser name", item))
			continue
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, warnings
}

// Metrics holds Prometheus metrics for one UDP endpoint
type Metrics struct {
	datagramsReceived prometheus.Counter
	bytesReceived     prometheus.Counter
	socketErrors      prometheus.Counter
	dispatchErrors    prometheus.Counter
	lastActivity      prometheus.Gauge
}

// newMetrics creates and registers UDP input metrics
func newMetrics(registry *metric.MetricsRegistry, ep Endpoint) *Metrics {
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"endpoint": ep.Address()}
	metrics := &Metrics{
		datagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ngsi_adapter",
			Subsystem:   "udp",
			Name:        "datagrams_received_total",
			Help:        "Total UDP datagrams received",
			ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ngsi_adapter",
			Subsystem:   "udp",
			Name:        "bytes_received_total",
			Help:        "Total bytes received from UDP",
			ConstLabels: labels,
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ngsi_adapter",
			Subsystem:   "udp",
			Name:        "socket_errors_total",
			Help:        "Socket read errors encountered",
			ConstLabels: labels,
		}),
		dispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ngsi_adapter",
			Subsystem:   "udp",
			Name:        "dispatch_errors_total",
			Help:        "Datagrams dropped because their parser could not be resolved",
			ConstLabels: labels,
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ngsi_adapter",
			Subsystem:   "udp",
			Name:        "last_activity_timestamp",
			Help:        "Unix timestamp of last received datagram",
			ConstLabels: labels,
		}),
	}

	serviceName := "udp_" + ep.Address()
	_ = registry.RegisterCounter(serviceName, "datagrams_received", metrics.datagramsReceived)
	_ = registry.RegisterCounter(serviceName, "bytes_received", metrics.bytesReceived)
	_ = registry.RegisterCounter(serviceName, "socket_errors", metrics.socketErrors)
	_ = registry.RegisterCounter(serviceName, "dispatch_errors", metrics.dispatchErrors)
	_ = registry.RegisterGauge(serviceName, "last_activity", metrics.lastActivity)

	return metrics
}

// Input listens on one UDP endpoint and dispatches every datagram as a
// probe request for the endpoint's parser.
type Input struct {
	endpoint   Endpoint
	resolver   input.Resolver
	dispatcher input.Dispatcher
	logger     *slog.Logger
	health     *health.Monitor

	retryConfig retry.Config

	// Lifecycle management
	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	conn     *net.UDPConn

	datagramsReceived atomic.Int64
	errors            atomic.Int64

	metrics *Metrics
}

// InputDeps holds runtime dependencies for UDP input component
type InputDeps struct {
	Endpoint        Endpoint
	Resolver        input.Resolver
	Dispatcher      input.Dispatcher
	MetricsRegistry *metric.MetricsRegistry
	Health          *health.Monitor
	Logger          *slog.Logger
}

// NewInput creates a new UDP input for one endpoint
func NewInput(deps InputDeps) (*Input, error) {
	if deps.Endpoint.Port < 0 || deps.Endpoint.Port > 65535 {
		return nil, errors.WrapInvalid(fmt.Errorf("invalid port %d", deps.Endpoint.Port),
			"udp-input", "NewInput", "port validation")
	}
	if deps.Endpoint.Parser == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("missing parser name"),
			"udp-input", "NewInput", "parser validation")
	}
	if deps.Resolver == nil || deps.Dispatcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"udp-input", "NewInput", "resolver and dispatcher are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Input{
		endpoint:    deps.Endpoint,
		resolver:    deps.Resolver,
		dispatcher:  deps.Dispatcher,
		logger:      logger.With("component", "udp-input", "endpoint", deps.Endpoint.Address()),
		health:      deps.Health,
		retryConfig: retry.DefaultConfig(),
		metrics:     newMetrics(deps.MetricsRegistry, deps.Endpoint),
	}, nil
}

// Name returns the component name used for health reporting
func (u *Input) Name() string {
	return "udp:" + u.endpoint.String()
}

// Endpoint returns the configured endpoint
func (u *Input) Endpoint() Endpoint {
	return u.endpoint
}

// Addr returns the bound address, or nil when not started
func (u *Input) Addr() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// DatagramsReceived returns the number of datagrams read so far
func (u *Input) DatagramsReceived() int64 {
	return u.datagramsReceived.Load()
}

// Start binds the socket and begins dispatching datagrams
func (u *Input) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running.Load() {
		return nil
	}

	u.shutdown = make(chan struct{})
	u.done = make(chan struct{})

	if err := retry.Do(ctx, u.retryConfig, u.bindSocket); err != nil {
		u.cleanupUnlocked()
		if u.health != nil {
			u.health.UpdateUnhealthy(u.Name(), "socket binding failed")
		}
		return errors.WrapTransient(err, "udp-input", "Start", "socket binding")
	}

	u.running.Store(true)

	u.logger.Info(fmt.Sprintf("Listening to UDP requests for parser %q at %s",
		u.endpoint.Parser, u.conn.LocalAddr()), "op", "Init")
	if u.health != nil {
		u.health.UpdateHealthy(u.Name(), "listening")
	}

	done := u.done
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer close(done)
		u.readLoop(ctx)
	}()

	return nil
}

// bindSocket creates and binds the UDP socket
func (u *Input) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", u.endpoint.Address())
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("failed to resolve UDP address %s: %w", u.endpoint.Address(), err))
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", u.endpoint.Address(), err)
	}

	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		// some systems limit the buffer size
		u.logger.Warn("Could not set UDP buffer size", "buffer_size", socketBufferSize, "error", err)
	}

	u.conn = conn
	return nil
}

// Stop gracefully stops the UDP listener with the specified timeout
func (u *Input) Stop(timeout time.Duration) error {
	if !u.running.Load() {
		return nil
	}

	u.running.Store(false)

	u.mu.Lock()
	if u.shutdown != nil {
		select {
		case <-u.shutdown:
		default:
			close(u.shutdown)
		}
	}
	// Closing the socket unblocks readLoop
	if u.conn != nil {
		_ = u.conn.Close()
	}
	done := u.done
	u.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp-input", "Stop", "graceful shutdown")
	}

	u.mu.Lock()
	u.cleanupUnlocked()
	u.mu.Unlock()
	if u.health != nil {
		u.health.Remove(u.Name())
	}
	return nil
}

// cleanupUnlocked releases the socket; the caller holds mu
func (u *Input) cleanupUnlocked() {
	u.shutdown = nil
	u.done = nil
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
}

// readLoop reads datagrams until shutdown
func (u *Input) readLoop(ctx context.Context) {
	buf := make([]byte, 65536)

	u.mu.RLock()
	conn := u.conn
	shutdown := u.shutdown
	u.mu.RUnlock()

	for u.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		// Periodic deadline so shutdown is noticed
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-shutdown:
				return
			default:
				u.errors.Add(1)
				if u.metrics != nil {
					u.metrics.socketErrors.Inc()
				}
				if !errors.IsTransient(err) {
					u.logger.Error("Server error", "op", "UDP", "error", err)
					if u.health != nil {
						u.health.UpdateUnhealthy(u.Name(), "socket read failed")
					}
					return
				}
				continue
			}
		}

		u.datagramsReceived.Add(1)
		if u.metrics != nil {
			u.metrics.datagramsReceived.Inc()
			u.metrics.bytesReceived.Add(float64(n))
			u.metrics.lastActivity.Set(float64(time.Now().Unix()))
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		u.handleDatagram(data)
	}
}

// handleDatagram hands one datagram to the pipeline. Failures are logged
// and never affect the socket or other datagrams.
func (u *Input) handleDatagram(data []byte) {
	rc := request.New(request.OriginUDP)
	rc.Body = data
	log := rc.Logger(u.logger)

	defer func() {
		if r := recover(); r != nil {
			u.errors.Add(1)
			log.Error(fmt.Sprintf("panic handling datagram: %v", r))
		}
	}()

	log.Info(fmt.Sprintf("UDP request to adapt data using parser %s", u.endpoint.Parser))

	p, err := u.resolver.Resolve(u.endpoint.Parser)
	if err != nil {
		u.errors.Add(1)
		if u.metrics != nil {
			u.metrics.dispatchErrors.Inc()
		}
		log.Error(err.Error())
		return
	}

	rc.Parser = p
	u.dispatcher.Dispatch(rc)
}
