package rest

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/health"
	"github.com/c360/ngsiadapter/input"
	"github.com/c360/ngsiadapter/metric"
	"github.com/c360/ngsiadapter/request"
)

// DefaultMaxBodyBytes caps inbound probe bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// HealthComponent is the name the listener reports under.
const HealthComponent = "http"

// HandlerDeps holds the collaborators of the HTTP handler
type HandlerDeps struct {
	Resolver     input.Resolver
	Dispatcher   input.Dispatcher
	Metrics      *metric.Metrics
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// Handler accepts probe requests of the form POST /{probe}?id={id}&type={type}.
// It answers as soon as the request is accepted; delivery happens after the
// response, through the Dispatcher.
type Handler struct {
	resolver   input.Resolver
	dispatcher input.Dispatcher
	metrics    *metric.Metrics
	logger     *slog.Logger
	maxBody    int64
}

// NewHandler creates the probe request handler
func NewHandler(deps HandlerDeps) (*Handler, error) {
	if deps.Resolver == nil || deps.Dispatcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"rest-input", "NewHandler", "resolver and dispatcher are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &Handler{
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		maxBody:    maxBody,
	}, nil
}

// statusRecorder remembers whether the response header was written
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
		s.ResponseWriter.WriteHeader(code)
	}
}

// ServeHTTP implements http.Handler. A panic while handling one request
// answers 500 and never reaches other requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := request.New(request.OriginHTTP)
	rc.CorrelationID = r.Header.Get(request.CorrelatorHeader)
	if rc.CorrelationID == "" {
		rc.CorrelationID = request.NewCorrelationID()
	}
	log := rc.Logger(h.logger).With("method", r.Method)

	rec := &statusRecorder{ResponseWriter: w}
	rec.Header().Set(request.CorrelatorHeader, rc.CorrelationID)

	defer func() {
		if p := recover(); p != nil {
			log.Error(fmt.Sprintf("%v", p))
			rec.WriteHeader(http.StatusInternalServerError)
			h.recordRequest(http.StatusInternalServerError)
		}
	}()

	resource := r.URL.Path
	if r.URL.RawQuery != "" {
		resource += " with params " + r.URL.RawQuery
	}
	log.Info(fmt.Sprintf("Request on resource %s", resource))

	status := h.accept(r, rc, log)

	log.Info(fmt.Sprintf("Response status %d %s", status, http.StatusText(status)))
	rec.WriteHeader(status)
	h.recordRequest(status)

	if status == http.StatusOK {
		h.dispatcher.Dispatch(rc)
	}
}

// accept validates the request and fills rc, returning the response status.
func (h *Handler) accept(r *http.Request, rc *request.Context, log *slog.Logger) int {
	if r.Method != http.MethodPost {
		return http.StatusMethodNotAllowed
	}

	query := r.URL.Query()
	rc.EntityID = query.Get("id")
	rc.EntityType = query.Get("type")
	if rc.EntityID == "" || rc.EntityType == "" {
		log.Error(errors.Validation(errors.ErrMissingEntity, "rest-input", "accept").Error())
		return http.StatusBadRequest
	}

	p, err := h.resolver.ResolveFromPath(r.URL.Path)
	h.recordResolution(err)
	if err != nil {
		log.Error(err.Error())
		return http.StatusNotFound
	}
	rc.Parser = p

	body, err := h.readBody(r)
	if err != nil {
		log.Error(err.Error())
		if stderrors.Is(err, errBodyTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	}
	rc.Body = body
	rc.ReceivedAt = time.Now()

	return http.StatusOK
}

var errBodyTooLarge = stderrors.New("request body too large")

// readBody drains the request body, inflating gzip bodies, up to the limit.
func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	reader := io.Reader(r.Body)
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, errors.Formatf("rest-input", "readBody", "invalid gzip body: %v", err)
		}
		defer zr.Close()
		reader = zr
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, h.maxBody+1))
	if err != nil {
		return nil, errors.Formatf("rest-input", "readBody", "failed to read request body: %v", err)
	}
	if n > h.maxBody {
		return nil, fmt.Errorf("%w: exceeds %d bytes", errBodyTooLarge, h.maxBody)
	}
	return buf.Bytes(), nil
}

func (h *Handler) recordRequest(status int) {
	if h.metrics != nil {
		h.metrics.RecordRequest(request.OriginHTTP, status)
	}
}

func (h *Handler) recordResolution(err error) {
	if h.metrics == nil {
		return
	}
	switch {
	case err == nil:
		h.metrics.RecordResolution("ok")
	case stderrors.Is(err, errors.ErrMissingResource):
		h.metrics.RecordResolution("missing")
	case errors.IsKind(err, errors.KindInvalid):
		h.metrics.RecordResolution("invalid")
	default:
		h.metrics.RecordResolution("not_found")
	}
}

// Server is the HTTP ingestion listener
type Server struct {
	host    string
	port    int
	handler http.Handler
	health  *health.Monitor
	logger  *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates the listener for host:port. Port 0 binds an ephemeral port.
func NewServer(host string, port int, handler http.Handler, monitor *health.Monitor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		host:    host,
		port:    port,
		handler: handler,
		health:  monitor,
		logger:  logger,
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "rest-input", "Start", "check running state")
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		if s.health != nil {
			s.health.UpdateUnhealthy(HealthComponent, "listen failed")
		}
		return errors.WrapFatal(err, "rest-input", "Start", fmt.Sprintf("listen on %s:%d", s.host, s.port))
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "op", "HTTP", "error", err)
			if s.health != nil {
				s.health.UpdateUnhealthy(HealthComponent, "server stopped")
			}
		}
	}()

	s.logger.Info(fmt.Sprintf("Server listening at http://%s/", listener.Addr()), "op", "Init")
	if s.health != nil {
		s.health.UpdateHealthy(HealthComponent, "listening")
	}
	return nil
}

// Stop shuts the listener down, waiting for in-flight handlers until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if s.health != nil {
		s.health.Remove(HealthComponent)
	}
	if err != nil {
		return errors.WrapTransient(err, "rest-input", "Stop", "graceful shutdown")
	}
	return nil
}

// Addr returns the bound address, or an empty string when not started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
