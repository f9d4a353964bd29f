package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/ngsiadapter/config"
	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/health"
	"github.com/c360/ngsiadapter/input/natsin"
	"github.com/c360/ngsiadapter/input/rest"
	"github.com/c360/ngsiadapter/input/udp"
	"github.com/c360/ngsiadapter/metric"
	"github.com/c360/ngsiadapter/natsclient"
	"github.com/c360/ngsiadapter/output/broker"
	"github.com/c360/ngsiadapter/parserregistry"
	"github.com/c360/ngsiadapter/request"
)

// SystemName is the name the aggregated health is reported under.
const SystemName = "ngsi-adapter"

// admin endpoints answer 429 above this rate
const (
	adminRate  = rate.Limit(20)
	adminBurst = 5
)

// Status represents the lifecycle state of the service
type Status int

// Possible service statuses
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ResultFunc receives the outcome of every delivery, after the pipeline has
// logged it. It runs on the delivery goroutine.
type ResultFunc func(rc *request.Context, res broker.Result)

// Option is a functional option for configuring the Service
type Option func(*Service)

// WithLogger sets the base logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResultFunc replaces the default result callback
func WithResultFunc(fn ResultFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.onResult = fn
		}
	}
}

// WithMetricsRegistry uses registry instead of a fresh one
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(s *Service) {
		if registry != nil {
			s.metrics = registry
		}
	}
}

// WithSubscriber feeds the NATS listener from sub instead of dialing the
// configured NATS URL.
func WithSubscriber(sub natsin.Subscriber) Option {
	return func(s *Service) {
		s.subscriber = sub
	}
}

// Service owns the parser registry, the delivery pipeline, the ingestion
// listeners and the admin endpoint, and dispatches every accepted request
// to its own delivery goroutine.
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	onResult ResultFunc

	registry *parserregistry.Registry
	pipeline *broker.Pipeline
	metrics  *metric.MetricsRegistry
	health   *health.Monitor

	http       *rest.Server
	udp        []*udp.Input
	nats       *natsin.Input
	natsClient *natsclient.Client
	subscriber natsin.Subscriber
	admin      *metric.Server
	adminLimit *rate.Limiter

	// deliveries outlive the inbound connection; only Stop cancels them
	deliveryCtx    context.Context
	cancelDelivery context.CancelFunc
	inflight       sync.WaitGroup
	dispatched     atomic.Int64

	status atomic.Value // Status
	mu     sync.Mutex
}

// New wires the adapter from a checked configuration
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil || cfg.Broker == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "adapter", "New", "checked configuration required")
	}

	s := &Service{
		cfg:    cfg,
		logger: slog.Default(),
		health: health.NewMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metric.NewMetricsRegistry()
	}
	if s.onResult == nil {
		s.onResult = s.logResult
	}
	s.status.Store(StatusStopped)

	s.registry = parserregistry.NewFromPath(cfg.ParserPath, parserregistry.WithLogger(s.logger))

	pipeline, err := broker.New(broker.Config{
		Broker:      cfg.Broker,
		Retries:     cfg.Retries,
		RetryDelay:  cfg.RetryDelay,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.RequestTimeout,
	},
		broker.WithLogger(s.logger),
		broker.WithMetrics(s.metrics.CoreMetrics()),
		broker.WithHealth(s.health),
	)
	if err != nil {
		return nil, err
	}
	s.pipeline = pipeline

	handler, err := rest.NewHandler(rest.HandlerDeps{
		Resolver:     s.registry,
		Dispatcher:   s,
		Metrics:      s.metrics.CoreMetrics(),
		Logger:       s.logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}
	s.http = rest.NewServer(cfg.ListenHost, cfg.ListenPort, handler, s.health, s.logger)

	for _, ep := range cfg.Endpoints {
		in, err := udp.NewInput(udp.InputDeps{
			Endpoint:        ep,
			Resolver:        s.registry,
			Dispatcher:      s,
			MetricsRegistry: s.metrics,
			Health:          s.health,
			Logger:          s.logger,
		})
		if err != nil {
			return nil, err
		}
		s.udp = append(s.udp, in)
	}

	if len(cfg.Bindings) > 0 {
		if err := s.setupNATS(); err != nil {
			return nil, err
		}
	}

	if cfg.AdminPort > 0 {
		s.admin = metric.NewServer(cfg.ListenHost, cfg.AdminPort, "/metrics", s.metrics, s.logger)
		s.adminLimit = rate.NewLimiter(adminRate, adminBurst)
		s.admin.Handle("/health", s.limited(s.health.Handler(SystemName)))
		s.admin.Handle("/parsers", s.limited(s.ParsersHandler()))
	}

	return s, nil
}

func (s *Service) setupNATS() error {
	sub := s.subscriber
	if sub == nil {
		client, err := natsclient.NewClient(s.cfg.NATSURL,
			natsclient.WithLogger(s.logger),
			natsclient.WithMetrics(s.metrics),
			natsclient.WithName(SystemName),
			natsclient.WithHealthChangeCallback(func(healthy bool) {
				if healthy {
					s.health.UpdateHealthy("nats-connection", "connected")
				} else {
					s.health.UpdateDegraded("nats-connection", "disconnected")
				}
			}),
		)
		if err != nil {
			return err
		}
		s.natsClient = client
		sub = client
	}

	in, err := natsin.NewInput(natsin.InputDeps{
		Bindings:        s.cfg.Bindings,
		Subscriber:      sub,
		Resolver:        s.registry,
		Dispatcher:      s,
		MetricsRegistry: s.metrics,
		Health:          s.health,
		Logger:          s.logger,
	})
	if err != nil {
		return err
	}
	s.nats = in
	return nil
}

// Status returns the lifecycle state
func (s *Service) Status() Status {
	return s.status.Load().(Status)
}

// Registry returns the parser registry
func (s *Service) Registry() *parserregistry.Registry {
	return s.registry
}

// Pipeline returns the delivery pipeline
func (s *Service) Pipeline() *broker.Pipeline {
	return s.pipeline
}

// Health returns the health monitor
func (s *Service) Health() *health.Monitor {
	return s.health
}

// MetricsRegistry returns the metrics registry
func (s *Service) MetricsRegistry() *metric.MetricsRegistry {
	return s.metrics
}

// HTTPAddr returns the bound HTTP listener address once started
func (s *Service) HTTPAddr() string {
	return s.http.Addr()
}

// UDPInputs returns the UDP listeners
func (s *Service) UDPInputs() []*udp.Input {
	return s.udp
}

// Dispatched returns the number of requests handed to the pipeline
func (s *Service) Dispatched() int64 {
	return s.dispatched.Load()
}

// Start starts every listener. A listener that fails to start stops the
// ones already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st == StatusRunning || st == StatusStarting {
		return nil
	}
	s.status.Store(StatusStarting)
	s.deliveryCtx, s.cancelDelivery = context.WithCancel(context.WithoutCancel(ctx))

	s.logger.Info("Starting adapter", "op", "Init",
		"broker", s.cfg.Broker.URL, "api", s.cfg.Broker.API.Segment, "variant", s.cfg.Broker.API.Variant.String())

	if err := s.startListeners(ctx); err != nil {
		s.stopListeners(5 * time.Second)
		s.cancelDelivery()
		s.status.Store(StatusStopped)
		return err
	}

	s.status.Store(StatusRunning)
	return nil
}

func (s *Service) startListeners(ctx context.Context) error {
	if s.admin != nil {
		if err := s.admin.Start(); err != nil {
			return err
		}
	}

	if err := s.http.Start(ctx); err != nil {
		return err
	}

	for _, in := range s.udp {
		if err := in.Start(ctx); err != nil {
			return err
		}
	}

	if s.nats != nil {
		if s.natsClient != nil {
			if err := s.natsClient.Connect(ctx); err != nil {
				return err
			}
		}
		if err := s.nats.Start(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Stop stops accepting requests, waits up to timeout for in-flight
// deliveries, then cancels whatever is left.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st == StatusStopped || st == StatusStopping {
		return nil
	}
	s.status.Store(StatusStopping)

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)

	errs := s.stopListeners(timeout)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
		s.logger.Warn("Shutdown timeout, cancelling in-flight deliveries", "op", "Exit")
		s.cancelDelivery()
		<-done
	}
	s.cancelDelivery()

	if s.natsClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Until(deadline)+time.Second)
		if err := s.natsClient.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.admin.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	s.status.Store(StatusStopped)
	s.logger.Info("Adapter stopped", "op", "Exit", "dispatched", s.dispatched.Load())

	if len(errs) > 0 {
		return errors.WrapTransient(fmt.Errorf("%d errors during shutdown: %v", len(errs), errs),
			"adapter", "Stop", "graceful shutdown")
	}
	return nil
}

func (s *Service) stopListeners(timeout time.Duration) []error {
	if s.nats != nil {
		s.nats.Stop()
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) error {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		return nil
	}

	var g errgroup.Group
	for _, in := range s.udp {
		g.Go(func() error { return collect(in.Stop(timeout)) })
	}
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return collect(s.http.Stop(ctx))
	})
	_ = g.Wait()

	return errs
}

// Dispatch runs the delivery pipeline for rc on its own goroutine and
// reports the result to the ResultFunc.
func (s *Service) Dispatch(rc *request.Context) {
	ctx := s.deliveryCtx
	if ctx == nil {
		ctx = context.Background()
	}

	s.dispatched.Add(1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				rc.Logger(s.logger).Error(fmt.Sprintf("panic during delivery: %v", r))
			}
		}()

		res := s.pipeline.Deliver(ctx, rc)
		s.onResult(rc, res)
	}()
}

// Wait blocks until every dispatched delivery has finished
func (s *Service) Wait() {
	s.inflight.Wait()
}

// logResult is the default ResultFunc. The pipeline has already logged the
// response; this records the final outcome on one line.
func (s *Service) logResult(rc *request.Context, res broker.Result) {
	log := rc.Logger(s.logger)
	if res.OK() {
		log.Debug("Delivery completed", "status", res.StatusCode, "attempts", res.Attempts)
		return
	}
	log.Warn("Delivery failed", "error", res.Err, "attempts", res.Attempts)
}

type parsersResponse struct {
	Cached  []string `json:"cached"`
	Builtin []string `json:"builtin"`
	Path    []string `json:"path"`
}

// limited rejects admin requests beyond the admin rate
func (s *Service) limited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.adminLimit.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ParsersHandler serves the parser names resolved so far, the built-in
// catalog and the search path as JSON.
func (s *Service) ParsersHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		resp := parsersResponse{
			Cached:  s.registry.Cached(),
			Builtin: parserregistry.BuiltinNames(),
			Path:    s.registry.SearchPath(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Error("Failed to encode parsers response", "error", err)
		}
	})
}
