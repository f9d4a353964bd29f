package parser

import (
	"strings"

	"github.com/c360/ngsiadapter/errors"
)

// MultiLine implements ParseRequest for plugins whose output follows the
// Nagios envelope:
//
//	TEXT LINE 1 | PERFDATA LINE 1
//	TEXT LINE 2
//	TEXT LINE N | PERFDATA LINE 2
//	PERFDATA LINE N
//
// Every line holds at most one "|" and a non-empty text part. Only one line
// after the first may carry a performance section, and only when the first
// line had one; lines after it continue the performance data. Leaf parsers
// embed MultiLine and supply ContextAttrs.
type MultiLine struct {
	Base
}

// NewMultiLine creates the envelope behavior for the named parser.
func NewMultiLine(name string) MultiLine {
	return MultiLine{Base: NewBase(name)}
}

// ParseRequest splits the request body into its text and performance sections.
func (m MultiLine) ParseRequest(req Request) (*EntityData, error) {
	body := strings.TrimSuffix(string(req.Body), "\n")
	body = strings.TrimSuffix(body, "\r")

	data := &EntityData{}
	first := true
	multilinePerf := false

	for _, line := range strings.Split(body, "\n") {
		parts := strings.Split(strings.TrimSuffix(line, "\r"), "|")
		if len(parts) > 2 || parts[0] == "" {
			return nil, errors.Format(errors.ErrInvalidDataFormat, m.Name(), "ParseRequest")
		}

		switch {
		case first:
			data.Data = parts[0]
			if len(parts) == 2 {
				data.PerfData = parts[1]
			}
			first = false
		case len(parts) == 2 && parts[1] != "":
			if data.PerfData == "" || multilinePerf {
				return nil, errors.Format(errors.ErrInvalidPerfFormat, m.Name(), "ParseRequest")
			}
			data.PerfData += "\n" + parts[1]
			data.Data += "\n" + parts[0]
			multilinePerf = true
		case multilinePerf:
			data.PerfData += "\n" + parts[0]
		default:
			data.Data += "\n" + parts[0]
		}
	}

	return data, nil
}
