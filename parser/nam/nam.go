// Package nam holds the parsers for network active monitoring probes, which
// post a JSON test report instead of plugin text.
//
//	{
//	  "idTest": "Owd-1393612954320",
//	  "region": "XIFI_UPM",
//	  "type": "Owd",
//	  "hostSource": "138.4.47.33",
//	  "hostDestination": "193.1.202.133",
//	  "error": false,
//	  "result": "owd_sc_min:26ms, owd_sc_max:26ms, owd_cs_min:76ms, owd_cs_max:79ms, jitter_sc:0ms, jitter_cs:3ms "
//	}
package nam

import (
	"regexp"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

// RegionEntityType is the entity type assigned when a report names its region
// and the request did not carry an entity.
const RegionEntityType = "region"

// Report is the JSON document posted by a probe.
type Report struct {
	IDTest          string `json:"idTest"`
	Region          string `json:"region"`
	Type            string `json:"type"`
	Timestamp       string `json:"timestamp"`
	HostSource      string `json:"hostSource"`
	HostDestination string `json:"hostDestination"`
	Error           bool   `json:"error"`
	Result          string `json:"result"`
}

// Factory creates a parser instance.
type Factory func() parser.Parser

// Factories returns the built-in JSON probe parsers keyed by probe name.
func Factories() map[string]Factory {
	return map[string]Factory{
		"owd": func() parser.Parser { return NewOWD() },
		"bdw": func() parser.Parser { return NewBandwidth() },
	}
}

// reportParser keeps the whole body as Data and decodes it in ContextAttrs.
type reportParser struct {
	parser.Base
}

// ParseRequest implements parser.RequestParser.
func (p reportParser) ParseRequest(req parser.Request) (*parser.EntityData, error) {
	report, err := decode(req.Body)
	if err != nil {
		return nil, errors.Format(err, p.Name(), "ParseRequest")
	}

	data := &parser.EntityData{Data: string(req.Body)}
	if report.Region != "" {
		data.EntityID = report.Region
		data.EntityType = RegionEntityType
	}
	return data, nil
}

func decode(body []byte) (*Report, error) {
	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, errors.ErrInvalidDataFormat
	}
	return &report, nil
}

func floats(re *regexp.Regexp, s string) []float64 {
	var out []float64
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
