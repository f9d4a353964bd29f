package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/health"
	"github.com/c360/ngsiadapter/metric"
	"github.com/c360/ngsiadapter/ngsi"
	"github.com/c360/ngsiadapter/parser"
	"github.com/c360/ngsiadapter/pkg/retry"
	"github.com/c360/ngsiadapter/request"
)

// HealthComponent is the name the pipeline reports broker reachability under.
const HealthComponent = "broker"

// Config holds the delivery settings
type Config struct {
	Broker      *ngsi.Broker
	Retries     int
	RetryDelay  time.Duration
	MaxRequests int
	Timeout     time.Duration
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Broker == nil || c.Broker.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "broker is required")
	}
	if c.Retries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "retries must not be negative")
	}
	if c.MaxRequests < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max requests must be at least 1")
	}
	if c.RetryDelay < 0 || c.Timeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "durations must not be negative")
	}
	return nil
}

// Result is the outcome of one delivery. Err is nil on success.
type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
	Err         error
	Attempts    int
	// EmbeddedCode is the application error code found in a legacy response body, if any.
	EmbeddedCode int

	brokerError bool
}

// OK reports whether the update was delivered
func (r Result) OK() bool {
	return r.Err == nil
}

// Pipeline runs parse, attribute extraction, payload building and delivery
// for one request at a time. It is safe for concurrent use.
type Pipeline struct {
	api     ngsi.API
	client  *resty.Client
	retry   retry.Config
	logger  *slog.Logger
	metrics *metric.Metrics
	health  *health.Monitor

	// slots holds one token per outbound request in flight
	slots   chan struct{}
	timeout time.Duration
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the base logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records delivery metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithHealth reports broker reachability to the monitor
func WithHealth(monitor *health.Monitor) Option {
	return func(p *Pipeline) {
		p.health = monitor
	}
}

// New creates a delivery pipeline. Outbound requests to the broker are
// capped at MaxRequests; further requests wait for a free slot. The timeout
// applies to each attempt from the moment it holds a slot.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		api:     cfg.Broker.API,
		retry:   retry.ForRetries(cfg.Retries, cfg.RetryDelay),
		logger:  slog.Default(),
		slots:   make(chan struct{}, cfg.MaxRequests),
		timeout: cfg.Timeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxRequests
	transport.MaxIdleConnsPerHost = cfg.MaxRequests

	p.client = resty.New().
		SetTransport(transport).
		SetBaseURL(cfg.Broker.URL).
		SetRetryCount(0).
		SetLogger(&restyLogger{logger: p.logger})

	return p, nil
}

// API returns the broker API the pipeline speaks
func (p *Pipeline) API() ngsi.API {
	return p.api
}

// Prepare parses the request body and builds the outbound update, storing
// it in rc.Outbound. Failures here never reach the network.
func (p *Pipeline) Prepare(rc *request.Context) error {
	rc.Advance(request.PhaseParse)

	if rc.Parser == nil {
		return errors.NotFound(errors.ErrParserNotFound, "broker", "Prepare")
	}

	data, err := rc.Parser.ParseRequest(parser.Request{
		Body:       rc.Body,
		EntityID:   rc.EntityID,
		EntityType: rc.EntityType,
	})
	if err != nil {
		return err
	}
	if rc.EntityID == "" {
		rc.EntityID = data.EntityID
	}
	if rc.EntityType == "" {
		rc.EntityType = data.EntityType
	}

	attrs, err := rc.Parser.ContextAttrs(data)
	if err != nil {
		return err
	}
	if len(attrs) == 0 {
		return errors.Format(errors.ErrMissingAttributes, "broker", "Prepare")
	}

	withTimestamp := make(parser.Attributes, len(attrs)+1)
	for name, value := range attrs {
		withTimestamp[name] = value
	}
	withTimestamp[parser.TimestampAttr] = rc.Timestamp()

	out, err := ngsi.Build(p.api, ngsi.Update{
		EntityID:      rc.EntityID,
		EntityType:    rc.EntityType,
		Attributes:    withTimestamp,
		ContentType:   rc.Parser.ContentType(),
		TransactionID: rc.TransactionID,
		CorrelationID: rc.CorrelationID,
	})
	if err != nil {
		return err
	}

	rc.Outbound = out
	return nil
}

// Deliver runs the whole pipeline for rc and returns its result. Only
// transport failures are retried; any HTTP response ends the attempts.
func (p *Pipeline) Deliver(ctx context.Context, rc *request.Context) Result {
	if p.metrics != nil {
		p.metrics.DeliveryStarted()
		defer p.metrics.DeliveryFinished()
	}

	result := p.deliver(ctx, rc)
	rc.Advance(request.PhaseDone)

	if p.metrics != nil {
		p.metrics.RecordDelivery(p.api.Variant.String(), outcome(result), time.Since(rc.ReceivedAt))
	}
	return result
}

func (p *Pipeline) deliver(ctx context.Context, rc *request.Context) Result {
	if err := p.Prepare(rc); err != nil {
		rc.Logger(p.logger).Error(err.Error())
		return Result{Err: err}
	}

	rc.Advance(request.PhaseUpdateContext)
	log := rc.Logger(p.logger)
	out := rc.Outbound

	log.Info(fmt.Sprintf("Request to ContextBroker at %s...", p.client.BaseURL+out.URI))
	log.Debug(string(out.Body))

	cfg := p.retry
	cfg.OnRetry = func(next int, err error, delay time.Duration) {
		log.Info(fmt.Sprintf("Temporary error %q. Retrying...", err.Error()),
			"attempt", next, "delay", delay)
	}

	var (
		resp     *resty.Response
		attempts int
	)
	err := retry.Do(ctx, cfg, func() error {
		attempts++
		if p.metrics != nil {
			p.metrics.RecordAttempt()
		}
		r, err := p.send(ctx, out)
		if err != nil {
			return errors.Transport(err, "broker", "Deliver")
		}
		resp = r
		return nil
	})

	if p.health != nil {
		p.health.Report(HealthComponent, err)
	}

	if err != nil {
		if !errors.IsKind(err, errors.KindTransport) {
			err = errors.Transport(err, "broker", "Deliver")
		}
		log.Error(err.Error(), "attempts", attempts)
		return Result{Err: err, Attempts: attempts}
	}

	return p.classify(rc, resp, attempts)
}

func (p *Pipeline) send(ctx context.Context, out *ngsi.Request) (*resty.Response, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req := p.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(out.Header).
		SetBody(out.Body)
	return req.Execute(out.Method, out.URI)
}

// classify logs the broker response and turns it into a result. For the v2
// API only the success status counts; for the other APIs any response is a
// success and the embedded error code only selects the log level.
func (p *Pipeline) classify(rc *request.Context, resp *resty.Response, attempts int) Result {
	if corr := resp.Header().Get(request.CorrelatorHeader); corr != "" {
		rc.CorrelationID = corr
	}
	log := rc.Logger(p.logger)

	status := resp.StatusCode()
	body := resp.Body()
	success := p.api.SuccessStatus()

	if p.metrics != nil {
		p.metrics.RecordBrokerResponse(status)
	}

	result := Result{
		StatusCode:  status,
		Body:        body,
		ContentType: resp.Header().Get("Content-Type"),
		Attempts:    attempts,
	}

	ok := status == success
	if p.api.Variant != ngsi.VariantV2 {
		result.EmbeddedCode = embeddedCode(body)
		if result.EmbeddedCode != 0 && result.EmbeddedCode != success {
			ok = false
		}
	} else if !ok {
		result.Err = errors.Protocol(status, "broker", "Deliver")
	}

	result.brokerError = !ok

	log.Info(fmt.Sprintf("Response status %d %s", status, http.StatusText(status)))
	if ok {
		log.Debug(string(body))
	} else {
		log.Error(string(body))
	}
	return result
}

type orionResponse struct {
	OrionError *struct {
		Code json.RawMessage `json:"code"`
	} `json:"orionError"`
}

// embeddedCode extracts orionError.code from a JSON response body. The code
// may be rendered as a number or a string; zero means absent.
func embeddedCode(body []byte) int {
	var r orionResponse
	if len(body) == 0 || json.Unmarshal(body, &r) != nil || r.OrionError == nil {
		return 0
	}
	code, err := strconv.Atoi(strings.Trim(string(r.OrionError.Code), `"`))
	if err != nil {
		return 0
	}
	return code
}

func outcome(r Result) string {
	switch {
	case r.Err == nil && !r.brokerError:
		return "success"
	case r.brokerError || errors.IsKind(r.Err, errors.KindProtocol):
		return "broker_error"
	default:
		return errors.KindOf(r.Err).String()
	}
}

// restyLogger routes resty's own diagnostics to slog at debug level.
type restyLogger struct {
	logger *slog.Logger
}

func (l *restyLogger) Errorf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "resty")
}

func (l *restyLogger) Warnf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "resty")
}

func (l *restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "resty")
}
