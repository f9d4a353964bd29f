package parser

import (
	"fmt"

	"github.com/c360/ngsiadapter/errors"
)

// Content types a parser may declare for the update request it produces.
const (
	ContentTypeJSON = "application/json"
	ContentTypeXML  = "application/xml"
)

// TimestampAttr is the attribute the pipeline injects with the request reception time.
const TimestampAttr = "_timestamp"

// Request is the part of an inbound probe request a parser reads.
type Request struct {
	Body       []byte
	EntityID   string
	EntityType string
}

// EntityData is the intermediate result of ParseRequest.
//
// Data and PerfData hold the text and performance sections of an envelope
// based probe. EntityID and EntityType are set only by parsers that read the
// target entity from the payload itself.
type EntityData struct {
	Data       string
	PerfData   string
	EntityID   string
	EntityType string
}

// Attributes maps attribute names to scalar values (numbers or strings).
type Attributes map[string]any

// RequestParser extracts entity data from a raw probe request.
type RequestParser interface {
	ParseRequest(req Request) (*EntityData, error)
}

// AttrsExtractor derives context attributes from parsed entity data.
type AttrsExtractor interface {
	ContextAttrs(data *EntityData) (Attributes, error)
}

// Parser turns raw probe output into named context attributes.
// Implementations are shared across concurrent requests and must not keep
// per-request state.
type Parser interface {
	RequestParser
	AttrsExtractor
	Name() string
	ContentType() string
}

// Base provides the default behavior every parser falls back to: both
// contract operations fail with "must implement" and the content type is JSON.
type Base struct {
	name        string
	contentType string
}

// NewBase creates the base behavior for the named parser.
func NewBase(name string) Base {
	return Base{name: name, contentType: ContentTypeJSON}
}

// WithContentType returns a copy of b declaring the given content type.
func (b Base) WithContentType(contentType string) Base {
	b.contentType = contentType
	return b
}

// Name returns the probe name the parser was registered under.
func (b Base) Name() string {
	return b.name
}

// ContentType returns the content type of the update request body.
func (b Base) ContentType() string {
	if b.contentType == "" {
		return ContentTypeJSON
	}
	return b.contentType
}

// ParseRequest fails with "must implement".
func (b Base) ParseRequest(Request) (*EntityData, error) {
	return nil, errors.Invalid(fmt.Errorf("%s: ParseRequest: %w", b.name, errors.ErrMustImplement), b.name, "ParseRequest")
}

// ContextAttrs fails with "must implement".
func (b Base) ContextAttrs(*EntityData) (Attributes, error) {
	return nil, errors.Invalid(fmt.Errorf("%s: ContextAttrs: %w", b.name, errors.ErrMustImplement), b.name, "ContextAttrs")
}

// composed completes a partial implementation with the base behavior.
type composed struct {
	Base
	requests RequestParser
	attrs    AttrsExtractor
}

func (c *composed) ParseRequest(req Request) (*EntityData, error) {
	if c.requests == nil {
		return c.Base.ParseRequest(req)
	}
	return c.requests.ParseRequest(req)
}

func (c *composed) ContextAttrs(data *EntityData) (Attributes, error) {
	if c.attrs == nil {
		return c.Base.ContextAttrs(data)
	}
	return c.attrs.ContextAttrs(data)
}

// Compose returns impl as a full Parser. Implementations exposing only part of
// the contract are completed with the base behavior, so the missing operation
// fails with "must implement". Values exposing neither operation yield an
// InvalidError.
func Compose(name string, impl any) (Parser, error) {
	if p, ok := impl.(Parser); ok {
		return p, nil
	}

	rp, hasRequests := impl.(RequestParser)
	ae, hasAttrs := impl.(AttrsExtractor)
	if !hasRequests && !hasAttrs {
		err := fmt.Errorf("%w module %q: exposes neither ParseRequest nor ContextAttrs", errors.ErrParserInvalid, name)
		return nil, errors.Invalid(err, "parser", "Compose")
	}

	base := NewBase(name)
	if ct, ok := impl.(interface{ ContentType() string }); ok {
		base = base.WithContentType(ct.ContentType())
	}
	return &composed{Base: base, requests: rp, attrs: ae}, nil
}
