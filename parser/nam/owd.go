package nam

import (
	"regexp"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

var owdValue = regexp.MustCompile(`:\s*([0-9.]+)`)

// OWD parses one way delay reports into OWD_min, OWD_max and jitter, all
// measured from source to destination.
type OWD struct {
	reportParser
}

// NewOWD creates the owd parser.
func NewOWD() *OWD {
	return &OWD{reportParser{Base: parser.NewBase("owd")}}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *OWD) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	report, err := decode([]byte(data.Data))
	if err != nil {
		return nil, errors.Format(err, p.Name(), "ContextAttrs")
	}

	// owd_sc_min, owd_sc_max, owd_cs_min, owd_cs_max, jitter_sc, jitter_cs
	items := floats(owdValue, report.Result)
	if len(items) < 5 {
		return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid owd data found")
	}
	return parser.Attributes{
		"OWD_min": items[0],
		"OWD_max": items[1],
		"jitter":  items[4],
	}, nil
}
