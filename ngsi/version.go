package ngsi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/c360/ngsiadapter/errors"
)

// Variant is one of the wire shapes of the context update request.
type Variant int

const (
	// VariantLegacy posts an updateContext envelope to /<segment>/updateContext
	VariantLegacy Variant = iota
	// VariantV1 posts the same envelope to /v1/updateContext
	VariantV1
	// VariantV2 posts a flat attribute object to /v2/entities/<id>/attrs
	VariantV2
)

// API segments with a dedicated variant. Any other segment is legacy.
const (
	SegmentLegacy = "ngsi10"
	SegmentV1     = "v1"
	SegmentV2     = "v2"
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantLegacy:
		return "legacy"
	case VariantV1:
		return "v1"
	case VariantV2:
		return "v2"
	default:
		return "unknown"
	}
}

// API identifies the broker schema the adapter speaks.
type API struct {
	Segment string
	Variant Variant
}

// APIFromSegment returns the API for a version segment such as "v2".
func APIFromSegment(segment string) API {
	segment = strings.ToLower(strings.Trim(segment, "/"))
	switch segment {
	case "":
		return API{Segment: SegmentLegacy, Variant: VariantLegacy}
	case SegmentV1:
		return API{Segment: segment, Variant: VariantV1}
	case SegmentV2:
		return API{Segment: segment, Variant: VariantV2}
	default:
		return API{Segment: segment, Variant: VariantLegacy}
	}
}

// SuccessStatus returns the status code the broker answers a successful
// update with.
func (a API) SuccessStatus() int {
	if a.Variant == VariantV2 {
		return http.StatusNoContent
	}
	return http.StatusOK
}

// Broker is the normalized broker location.
type Broker struct {
	// URL is the broker base URL with its path reset to "/".
	URL string
	API API
}

// ParseBrokerURL derives the broker API from the URL path, which is matched
// case-insensitively and without its trailing slash. A bare "/" selects the
// legacy ngsi10 API.
func ParseBrokerURL(raw string) (*Broker, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "ngsi", "ParseBrokerURL", "url parse")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		err := fmt.Errorf("%w: broker URL %q must use http or https", errors.ErrInvalidConfig, raw)
		return nil, errors.WrapInvalid(err, "ngsi", "ParseBrokerURL", "scheme validation")
	}
	if u.Host == "" {
		err := fmt.Errorf("%w: broker URL %q has no host", errors.ErrInvalidConfig, raw)
		return nil, errors.WrapInvalid(err, "ngsi", "ParseBrokerURL", "host validation")
	}

	api := APIFromSegment(u.Path)
	u.Path = "/"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &Broker{URL: u.String(), API: api}, nil
}
