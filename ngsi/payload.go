package ngsi

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

// Update is the input of the payload builder.
type Update struct {
	EntityID      string
	EntityType    string
	Attributes    parser.Attributes
	ContentType   string
	TransactionID string
	CorrelationID string
}

// Request is a rendered context update, ready to send.
type Request struct {
	Method string
	// URI is the request path including its query string.
	URI    string
	Header http.Header
	Body   []byte
}

// ContentType returns the body content type.
func (r *Request) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Build renders the update for the given API. The v2 API only accepts JSON,
// so a parser declaring XML still gets a JSON body there.
func Build(api API, u Update) (*Request, error) {
	if u.EntityID == "" || u.EntityType == "" {
		return nil, errors.Validation(errors.ErrMissingEntity, "ngsi", "Build")
	}
	if len(u.Attributes) == 0 {
		return nil, errors.Format(errors.ErrMissingAttributes, "ngsi", "Build")
	}

	contentType := u.ContentType
	if contentType == "" || api.Variant == VariantV2 {
		contentType = parser.ContentTypeJSON
	}

	var (
		uri  string
		body []byte
		err  error
	)
	switch {
	case api.Variant == VariantV2:
		uri = "/" + SegmentV2 + "/entities/" + url.PathEscape(u.EntityID) +
			"/attrs?type=" + url.QueryEscape(u.EntityType) + "&options=append"
		body, err = json.Marshal(attrsV2(u.Attributes))
	case contentType == parser.ContentTypeXML:
		uri = "/" + api.Segment + "/updateContext"
		body, err = renderXML(u)
	default:
		uri = "/" + api.Segment + "/updateContext"
		body, err = json.Marshal(envelope(u))
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "ngsi", "Build", "payload rendering")
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Accept", contentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))
	if u.TransactionID != "" {
		header.Set(TransactionHeader, u.TransactionID)
	}
	if u.CorrelationID != "" {
		header.Set(CorrelatorHeader, u.CorrelationID)
	}

	return &Request{Method: http.MethodPost, URI: uri, Header: header, Body: body}, nil
}

// Header names propagated to the broker.
const (
	TransactionHeader = "txId"
	CorrelatorHeader  = "Fiware-Correlator"
)

// UpdateContextRequest is the legacy and v1 JSON envelope.
type UpdateContextRequest struct {
	ContextElements []ContextElement `json:"contextElements"`
	UpdateAction    string           `json:"updateAction"`
}

// ContextElement is one entity of an updateContext envelope.
type ContextElement struct {
	Type       string             `json:"type"`
	IsPattern  string             `json:"isPattern"`
	ID         string             `json:"id"`
	Attributes []ContextAttribute `json:"attributes"`
}

// ContextAttribute is one attribute of a context element.
type ContextAttribute struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AttributeValue is the value object of a v2 attribute.
type AttributeValue struct {
	Value string `json:"value"`
}

func sortedNames(attrs parser.Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contextAttributes(attrs parser.Attributes) []ContextAttribute {
	out := make([]ContextAttribute, 0, len(attrs))
	for _, name := range sortedNames(attrs) {
		out = append(out, ContextAttribute{Name: name, Type: "string", Value: parser.FormatValue(attrs[name])})
	}
	return out
}

func envelope(u Update) UpdateContextRequest {
	return UpdateContextRequest{
		ContextElements: []ContextElement{{
			Type:       u.EntityType,
			IsPattern:  "false",
			ID:         u.EntityID,
			Attributes: contextAttributes(u.Attributes),
		}},
		UpdateAction: "APPEND",
	}
}

func attrsV2(attrs parser.Attributes) map[string]AttributeValue {
	out := make(map[string]AttributeValue, len(attrs))
	for name, v := range attrs {
		out[name] = AttributeValue{Value: parser.FormatValue(v)}
	}
	return out
}

type xmlUpdateContextRequest struct {
	XMLName      xml.Name            `xml:"updateContextRequest"`
	Elements     []xmlContextElement `xml:"contextElementList>contextElement"`
	UpdateAction string              `xml:"updateAction"`
}

type xmlContextElement struct {
	EntityID   xmlEntityID           `xml:"entityId"`
	Attributes []xmlContextAttribute `xml:"contextAttributeList>contextAttribute"`
}

type xmlEntityID struct {
	Type      string `xml:"type,attr"`
	IsPattern string `xml:"isPattern,attr"`
	ID        string `xml:"id"`
}

type xmlContextAttribute struct {
	Name  string `xml:"name"`
	Type  string `xml:"type"`
	Value string `xml:"contextValue"`
}

func renderXML(u Update) ([]byte, error) {
	doc := xmlUpdateContextRequest{
		Elements: []xmlContextElement{{
			EntityID: xmlEntityID{Type: u.EntityType, IsPattern: "false", ID: u.EntityID},
		}},
		UpdateAction: "APPEND",
	}
	for _, a := range contextAttributes(u.Attributes) {
		doc.Elements[0].Attributes = append(doc.Elements[0].Attributes,
			xmlContextAttribute{Name: a.Name, Type: a.Type, Value: a.Value})
	}

	out, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
