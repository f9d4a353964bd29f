package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	v2AttrsPath   = regexp.MustCompile(`/entities/\S+/attrs.*[?&]type=\S+`)
	legacyUpdPath = regexp.MustCompile(`/(NGSI10|ngsi10|v1)/updateContext`)
)

// RecordedRequest is a request received by the DummyBroker.
type RecordedRequest struct {
	Method string
	URI    string
	Header http.Header
	Body   []byte
}

// DummyBroker is an http.Handler mimicking the context broker.
type DummyBroker struct {
	logger *slog.Logger

	mu       sync.Mutex
	requests []RecordedRequest
	notify   chan struct{}
}

// NewDummyBroker creates a broker double. A nil logger discards logs.
func NewDummyBroker(logger *slog.Logger) *DummyBroker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DummyBroker{
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

// ServeHTTP implements http.Handler
func (b *DummyBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		b.writeError(w, r, http.StatusInternalServerError)
		return
	}

	b.record(RecordedRequest{
		Method: r.Method,
		URI:    r.URL.RequestURI(),
		Header: r.Header.Clone(),
		Body:   body,
	})

	log := b.logger.With("trans", r.Header.Get("txId"), "op", r.Method)
	log.Info(fmt.Sprintf("Request to resource %s, Content-Type=%s Content-Length=%s",
		r.URL.RequestURI(), orNA(r.Header.Get("Content-Type")), orNA(r.Header.Get("Content-Length"))))

	if r.Method != http.MethodPost {
		b.writeError(w, r, http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	uri := r.URL.RequestURI()

	var (
		status       int
		responseBody string
	)
	if strings.Contains(uri, "/v2") {
		if v2AttrsPath.MatchString(uri) {
			status = http.StatusNoContent
		} else {
			status = http.StatusBadRequest
			responseBody = `{"error": "BadRequest"}`
		}
	} else {
		status = http.StatusOK
		responseBody = string(body)
		if !legacyUpdPath.MatchString(uri) {
			if contentType == "application/xml" {
				responseBody = "<orionError><code>400</code></orionError>"
			} else {
				responseBody = `{"orionError": {"code": 400}}`
			}
		}
	}

	if corr := r.Header.Get("Fiware-Correlator"); corr != "" {
		w.Header().Set("Fiware-Correlator", corr)
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, responseBody)

	log.Info(fmt.Sprintf("Response status %d %s", status, http.StatusText(status)))
}

func (b *DummyBroker) writeError(w http.ResponseWriter, r *http.Request, status int) {
	var body string
	if strings.Contains(r.URL.Path, "/v2") {
		body = fmt.Sprintf(`{"error": "%s"}`, http.StatusText(status))
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
	b.logger.Error(fmt.Sprintf("Response status %d %s %s", status, http.StatusText(status), body))
}

func (b *DummyBroker) record(req RecordedRequest) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Requests returns a copy of the requests received so far
func (b *DummyBroker) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// Count returns the number of requests received so far
func (b *DummyBroker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// WaitForRequests blocks until at least n requests arrived or the timeout expires.
func (b *DummyBroker) WaitForRequests(n int, timeout time.Duration) ([]RecordedRequest, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if reqs := b.Requests(); len(reqs) >= n {
			return reqs, nil
		}
		select {
		case <-b.notify:
		case <-deadline.C:
			return b.Requests(), fmt.Errorf("timeout waiting for %d broker requests (got %d)", n, b.Count())
		}
	}
}

// ListenAndServe serves the broker on addr until ctx is cancelled.
func (b *DummyBroker) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           b,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	b.logger.Info(fmt.Sprintf("Context Broker listening at http://%s/", listener.Addr()), "op", "Init")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		b.logger.Info("Context Broker stopped", "op", "Exit")
		return err
	case err := <-errCh:
		return err
	}
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
