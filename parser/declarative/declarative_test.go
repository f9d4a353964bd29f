package declarative

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

const pingDefinition = `
family: nagios
attributes:
  - name: packetLossPct
    pattern: 'Packet loss = ([0-9.]+)%'
    numeric: true
  - name: rtaMs
    source: perfData
    pattern: 'rta=([0-9.]+)ms'
    numeric: true
  - name: status
    pattern: '^PING (\w+)'
`

func TestLoad_Nagios(t *testing.T) {
	p, err := Load("check_ping", []byte(pingDefinition))
	require.NoError(t, err)
	assert.Equal(t, "check_ping", p.Name())
	assert.Equal(t, parser.ContentTypeJSON, p.ContentType())

	data, err := p.ParseRequest(parser.Request{
		Body: []byte("PING OK - Packet loss = 0%, RTA = 0.80 ms|rta=0.800000ms;100;500;0 pl=0%;20;60;0"),
	})
	require.NoError(t, err)

	attrs, err := p.ContextAttrs(data)
	require.NoError(t, err)
	assert.Equal(t, parser.Attributes{"packetLossPct": 0.0, "rtaMs": 0.8, "status": "OK"}, attrs)
}

func TestLoad_NagiosEnvelopeErrors(t *testing.T) {
	p, err := Load("check_ping", []byte(pingDefinition))
	require.NoError(t, err)

	_, err = p.ParseRequest(parser.Request{Body: []byte("a|b|c")})
	assert.True(t, errors.IsKind(err, errors.KindFormat))
}

func TestLoad_JSONField(t *testing.T) {
	def := `
family: json
contentType: application/xml
field: result
attributes:
  - name: latencyMs
    pattern: 'latency:([0-9.]+)ms'
    numeric: true
`
	p, err := Load("latency", []byte(def))
	require.NoError(t, err)
	assert.Equal(t, parser.ContentTypeXML, p.ContentType())

	data, err := p.ParseRequest(parser.Request{Body: []byte(`{"result": "latency:12.5ms"}`)})
	require.NoError(t, err)
	assert.Equal(t, "latency:12.5ms", data.Data)

	attrs, err := p.ContextAttrs(data)
	require.NoError(t, err)
	assert.Equal(t, 12.5, attrs["latencyMs"])

	_, err = p.ParseRequest(parser.Request{Body: []byte(`{"other": 1}`)})
	assert.True(t, errors.IsKind(err, errors.KindFormat))

	_, err = p.ParseRequest(parser.Request{Body: []byte(`not json`)})
	assert.True(t, errors.IsKind(err, errors.KindFormat))
}

func TestLoad_NoMatch(t *testing.T) {
	p, err := Load("check_ping", []byte(pingDefinition))
	require.NoError(t, err)

	attrs, err := p.ContextAttrs(&parser.EntityData{Data: "unrelated"})
	assert.Nil(t, attrs)
	assert.True(t, errors.IsKind(err, errors.KindFormat))
	assert.ErrorIs(t, err, errors.ErrMissingAttributes)
}

func TestLoad_InvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  string
	}{
		{"not yaml", "attributes: [unterminated"},
		{"missing attributes", "family: nagios"},
		{"empty attributes", "attributes: []"},
		{"unknown family", "family: snmp\nattributes:\n  - name: a\n    pattern: x"},
		{"unknown key", "attributes:\n  - name: a\n    pattern: x\n    color: red"},
		{"bad regexp", "attributes:\n  - name: a\n    pattern: '(['"},
		{"missing group", "attributes:\n  - name: a\n    pattern: 'x'\n    group: 2"},
		{"name mismatch", "name: other\nattributes:\n  - name: a\n    pattern: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Load("check_thing", []byte(tt.def))
			assert.Nil(t, p)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindInvalid))
			assert.ErrorIs(t, err, errors.ErrParserInvalid)
		})
	}
}
