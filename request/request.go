// Package request holds the per-request context threaded through the
// delivery pipeline.
//
// A Context is created by a listener when a probe request arrives and is
// owned by the goroutine delivering it. It is never shared between requests
// and never persisted.
package request

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/ngsiadapter/ngsi"
	"github.com/c360/ngsiadapter/parser"
	"github.com/c360/ngsiadapter/pkg/timestamp"
)

// Header names used to correlate a request across the adapter and the broker.
const (
	TransactionHeader = ngsi.TransactionHeader
	CorrelatorHeader  = ngsi.CorrelatorHeader
)

// Origins of a request.
const (
	OriginHTTP = "HTTP"
	OriginUDP  = "UDP"
	OriginNATS = "NATS"
)

// Phase tags the pipeline stage a request is in. It is descriptive only.
type Phase int

const (
	// PhaseAccept covers ingestion, until the parser is resolved
	PhaseAccept Phase = iota
	// PhaseParse covers parsing, attribute extraction and payload building
	PhaseParse
	// PhaseUpdateContext covers the attempts to deliver the update
	PhaseUpdateContext
	// PhaseDone is reached once the delivery result is known
	PhaseDone
)

// String returns the phase name used in the "op" log field.
func (p Phase) String() string {
	switch p {
	case PhaseAccept:
		return "Accept"
	case PhaseParse:
		return "Parse"
	case PhaseUpdateContext:
		return "UpdateContext"
	case PhaseDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Context carries the identifiers, raw body and intermediate results of one
// probe request.
type Context struct {
	TransactionID string
	CorrelationID string
	Origin        string
	EntityID      string
	EntityType    string
	Body          []byte
	ReceivedAt    time.Time
	Parser        parser.Parser

	// Outbound is filled by the payload builder.
	Outbound *ngsi.Request

	phase Phase
}

// New creates a request context with a fresh transaction id.
func New(origin string) *Context {
	return &Context{
		TransactionID: NewTransactionID(),
		Origin:        origin,
		ReceivedAt:    time.Now(),
	}
}

// NewTransactionID returns an identifier for a new transaction.
func NewTransactionID() string {
	return uuid.NewString()
}

// NewCorrelationID returns an identifier used when the caller did not supply one.
func NewCorrelationID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Phase returns the current pipeline phase.
func (c *Context) Phase() Phase {
	return c.phase
}

// Advance moves the context to phase p. Moving backwards is ignored.
func (c *Context) Advance(p Phase) {
	if p > c.phase {
		c.phase = p
	}
}

// Timestamp returns the reception time as Unix milliseconds.
func (c *Context) Timestamp() int64 {
	return timestamp.ToUnixMs(c.ReceivedAt)
}

// Logger returns base annotated with the request identifiers and phase.
func (c *Context) Logger(base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	attrs := []any{"trans", c.TransactionID}
	if c.CorrelationID != "" {
		attrs = append(attrs, "corr", c.CorrelationID)
	}
	attrs = append(attrs, "op", c.phase.String())
	return base.With(attrs...)
}

type contextKey struct{}

// WithContext returns ctx carrying rc.
func WithContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the request context carried by ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(contextKey{}).(*Context)
	return rc, ok
}
