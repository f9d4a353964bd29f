package nam

import (
	"regexp"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

var bandwidthValue = regexp.MustCompile(`([0-9.]+) Mbits`)

// bandwidthIntervals describes the iperf run: a 10 second test sampled every 2 seconds.
const bandwidthIntervals = "10;2"

// Bandwidth parses iperf bandwidth reports. The last sample iperf prints is
// the average over the whole run.
type Bandwidth struct {
	reportParser
}

// NewBandwidth creates the bdw parser.
func NewBandwidth() *Bandwidth {
	return &Bandwidth{reportParser{Base: parser.NewBase("bdw")}}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Bandwidth) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	report, err := decode([]byte(data.Data))
	if err != nil {
		return nil, errors.Format(err, p.Name(), "ContextAttrs")
	}

	samples := floats(bandwidthValue, report.Result)
	if len(samples) == 0 {
		return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid bandwidth data found")
	}
	return parser.Attributes{
		"timeIntervals": bandwidthIntervals,
		"bandwidth":     samples,
		"bandwidth_avg": samples[len(samples)-1],
	}, nil
}
