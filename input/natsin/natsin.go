package natsin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/health"
	"github.com/c360/ngsiadapter/input"
	"github.com/c360/ngsiadapter/metric"
	"github.com/c360/ngsiadapter/request"
)

// HealthComponent is the name the listener reports health under.
const HealthComponent = "nats"

// Subscriber is the part of natsclient.Client the listener needs.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Binding routes messages on Subject to the named parser.
type Binding struct {
	Subject string
	Parser  string
}

// String returns the binding in subject:parser notation
func (b Binding) String() string {
	return b.Subject + ":" + b.Parser
}

// ParseBindings parses a comma-separated list of subject:parser items.
// The parser is taken after the last colon. Items missing either part are
// skipped and reported as warnings; duplicate subjects keep the first.
func ParseBindings(list string) ([]Binding, []string) {
	var (
		bindings []Binding
		warnings []string
	)
	seen := make(map[string]bool)

	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		idx := strings.LastIndex(item, ":")
		if idx <= 0 || idx == len(item)-1 {
			warnings = append(warnings, fmt.Sprintf("Ignoring NATS binding %q: expected subject:parser", item))
			continue
		}

		b := Binding{Subject: item[:idx], Parser: item[idx+1:]}
		if seen[b.Subject] {
			warnings = append(warnings, fmt.Sprintf("Ignoring NATS binding %q: subject already bound", item))
			continue
		}
		seen[b.Subject] = true
		bindings = append(bindings, b)
	}

	return bindings, warnings
}

// Metrics holds Prometheus metrics for the NATS listener
type Metrics struct {
	messagesReceived *prometheus.CounterVec
	dispatchErrors   *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ngsi_adapter",
			Subsystem: "nats_input",
			Name:      "messages_total",
			Help:      "Probe messages received by subject",
		}, []string{"subject"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ngsi_adapter",
			Subsystem: "nats_input",
			Name:      "dispatch_errors_total",
			Help:      "Messages dropped because their parser could not be resolved",
		}, []string{"subject"}),
	}

	_ = registry.RegisterCounterVec("nats_input", "messages_total", m.messagesReceived)
	_ = registry.RegisterCounterVec("nats_input", "dispatch_errors_total", m.dispatchErrors)

	return m
}

// InputDeps holds runtime dependencies for the NATS listener
type InputDeps struct {
	Bindings        []Binding
	Subscriber      Subscriber
	Resolver        input.Resolver
	Dispatcher      input.Dispatcher
	MetricsRegistry *metric.MetricsRegistry
	Health          *health.Monitor
	Logger          *slog.Logger
}

// Input subscribes to every binding and dispatches each message as a probe
// request.
type Input struct {
	bindings   []Binding
	subscriber Subscriber
	resolver   input.Resolver
	dispatcher input.Dispatcher
	logger     *slog.Logger
	health     *health.Monitor
	metrics    *Metrics

	mu       sync.Mutex
	started  bool
	running  atomic.Bool
	received atomic.Int64
	dropped  atomic.Int64
}

// NewInput creates the NATS listener
func NewInput(deps InputDeps) (*Input, error) {
	if len(deps.Bindings) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("no subject bindings"),
			"nats-input", "NewInput", "binding validation")
	}
	if deps.Subscriber == nil || deps.Resolver == nil || deps.Dispatcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"nats-input", "NewInput", "subscriber, resolver and dispatcher are required")
	}
	for _, b := range deps.Bindings {
		if b.Subject == "" || b.Parser == "" {
			return nil, errors.WrapInvalid(fmt.Errorf("incomplete binding %q", b.String()),
				"nats-input", "NewInput", "binding validation")
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Input{
		bindings:   deps.Bindings,
		subscriber: deps.Subscriber,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		logger:     logger.With("component", "nats-input"),
		health:     deps.Health,
		metrics:    newMetrics(deps.MetricsRegistry),
	}, nil
}

// Bindings returns the configured bindings
func (n *Input) Bindings() []Binding {
	out := make([]Binding, len(n.bindings))
	copy(out, n.bindings)
	return out
}

// MessagesReceived returns the number of messages handled so far
func (n *Input) MessagesReceived() int64 {
	return n.received.Load()
}

// MessagesDropped returns the number of messages whose parser could not be
// resolved
func (n *Input) MessagesDropped() int64 {
	return n.dropped.Load()
}

// Start subscribes to every bound subject. Subscriptions outlive Stop and
// are released when the connection closes; Stop only halts dispatching.
func (n *Input) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		n.running.Store(true)
		return nil
	}

	for _, b := range n.bindings {
		b := b
		if err := n.subscriber.Subscribe(ctx, b.Subject, func(msgCtx context.Context, data []byte) {
			n.handleMessage(msgCtx, b, data)
		}); err != nil {
			if n.health != nil {
				n.health.UpdateUnhealthy(HealthComponent, "subscription failed")
			}
			return errors.WrapTransient(err, "nats-input", "Start", fmt.Sprintf("subscribe %s", b.Subject))
		}
		n.logger.Info(fmt.Sprintf("Listening to NATS requests for parser %q on subject %s",
			b.Parser, b.Subject), "op", "Init")
	}

	n.started = true
	n.running.Store(true)
	if n.health != nil {
		n.health.UpdateHealthy(HealthComponent, "subscribed")
	}
	return nil
}

// Stop halts dispatching of further messages
func (n *Input) Stop() {
	n.running.Store(false)
	if n.health != nil {
		n.health.Remove(HealthComponent)
	}
}

// handleMessage hands one message to the pipeline. Failures are logged and
// never affect the subscription.
func (n *Input) handleMessage(_ context.Context, b Binding, data []byte) {
	if !n.running.Load() {
		return
	}

	rc := request.New(request.OriginNATS)
	rc.Body = append([]byte(nil), data...)
	log := rc.Logger(n.logger)

	defer func() {
		if r := recover(); r != nil {
			n.dropped.Add(1)
			log.Error(fmt.Sprintf("panic handling message on %s: %v", b.Subject, r))
		}
	}()

	n.received.Add(1)
	if n.metrics != nil {
		n.metrics.messagesReceived.WithLabelValues(b.Subject).Inc()
	}

	log.Info(fmt.Sprintf("NATS request on subject %s to adapt data using parser %s", b.Subject, b.Parser))

	p, err := n.resolver.Resolve(b.Parser)
	if err != nil {
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.dispatchErrors.WithLabelValues(b.Subject).Inc()
		}
		log.Error(err.Error())
		return
	}

	rc.Parser = p
	n.dispatcher.Dispatch(rc)
}
