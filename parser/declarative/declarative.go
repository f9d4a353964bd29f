// Package declarative builds parsers from YAML definition files, so a probe
// whose output only needs pattern matching can be added to a parser
// directory without new code.
//
//	# check_ping.yaml
//	family: nagios
//	attributes:
//	  - name: packetLossPct
//	    pattern: 'Packet loss = ([0-9.]+)%'
//	    numeric: true
//	  - name: rtaMs
//	    source: perfData
//	    pattern: 'rta=([0-9.]+)ms'
//	    numeric: true
//
// Definitions are validated against a JSON schema before use. A definition
// that fails validation resolves to an InvalidError.
package declarative

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

// Extensions lists the file extensions recognized as parser definitions.
var Extensions = []string{".yaml", ".yml"}

// Probe families a definition can declare.
const (
	FamilyNagios = "nagios"
	FamilyJSON   = "json"
)

// Sources an attribute pattern can be applied to.
const (
	SourceData     = "data"
	SourcePerfData = "perfData"
)

const definitionSchema = `{
  "type": "object",
  "required": ["attributes"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "family": {"enum": ["nagios", "json"]},
    "contentType": {"enum": ["application/json", "application/xml"]},
    "field": {"type": "string", "minLength": 1},
    "attributes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "pattern"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "source": {"enum": ["data", "perfData"]},
          "pattern": {"type": "string", "minLength": 1},
          "group": {"type": "integer", "minimum": 0},
          "numeric": {"type": "boolean"}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// Definition is the YAML form of a declarative parser.
type Definition struct {
	Name        string          `yaml:"name"`
	Family      string          `yaml:"family"`
	ContentType string          `yaml:"contentType"`
	Field       string          `yaml:"field"`
	Attributes  []AttributeSpec `yaml:"attributes"`
}

// AttributeSpec describes how one attribute is extracted.
type AttributeSpec struct {
	Name    string `yaml:"name"`
	Source  string `yaml:"source"`
	Pattern string `yaml:"pattern"`
	Group   *int   `yaml:"group"`
	Numeric bool   `yaml:"numeric"`
}

type attribute struct {
	name    string
	perf    bool
	re      *regexp.Regexp
	group   int
	numeric bool
}

// Parser is a parser built from a Definition.
type Parser struct {
	parser.Base
	envelope parser.MultiLine
	family   string
	field    string
	attrs    []attribute
}

// Load validates and compiles the definition for the named probe.
func Load(name string, raw []byte) (*Parser, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, invalid(name, fmt.Errorf("yaml: %w", err))
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, invalid(name, fmt.Errorf("validation error: %w", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, invalid(name, fmt.Errorf("%s", strings.Join(msgs, "; ")))
	}

	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, invalid(name, err)
	}
	return Compile(name, def)
}

// Compile builds a parser from an already decoded definition.
func Compile(name string, def Definition) (*Parser, error) {
	if def.Name != "" && def.Name != name {
		return nil, invalid(name, fmt.Errorf("definition declares name %q", def.Name))
	}
	if def.Family == "" {
		def.Family = FamilyNagios
	}

	base := parser.NewBase(name)
	if def.ContentType != "" {
		base = base.WithContentType(def.ContentType)
	}

	p := &Parser{
		Base:     base,
		envelope: parser.NewMultiLine(name),
		family:   def.Family,
		field:    def.Field,
	}

	for _, spec := range def.Attributes {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, invalid(name, fmt.Errorf("attribute %s: %w", spec.Name, err))
		}
		group := 0
		if re.NumSubexp() > 0 {
			group = 1
		}
		if spec.Group != nil {
			group = *spec.Group
		}
		if group > re.NumSubexp() {
			return nil, invalid(name, fmt.Errorf("attribute %s: pattern has no group %d", spec.Name, group))
		}
		p.attrs = append(p.attrs, attribute{
			name:    spec.Name,
			perf:    spec.Source == SourcePerfData,
			re:      re,
			group:   group,
			numeric: spec.Numeric,
		})
	}
	return p, nil
}

// ParseRequest implements parser.RequestParser.
func (p *Parser) ParseRequest(req parser.Request) (*parser.EntityData, error) {
	if p.family == FamilyNagios {
		return p.envelope.ParseRequest(req)
	}

	if p.field == "" {
		if !json.Valid(req.Body) {
			return nil, errors.Format(errors.ErrInvalidDataFormat, p.Name(), "ParseRequest")
		}
		return &parser.EntityData{Data: string(req.Body)}, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(req.Body, &doc); err != nil {
		return nil, errors.Format(errors.ErrInvalidDataFormat, p.Name(), "ParseRequest")
	}
	value, ok := doc[p.field].(string)
	if !ok {
		return nil, errors.Formatf(p.Name(), "ParseRequest", "field %q missing from report", p.field)
	}
	return &parser.EntityData{Data: value}, nil
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Parser) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	attrs := parser.Attributes{}
	for _, a := range p.attrs {
		src := data.Data
		if a.perf {
			src = data.PerfData
		}
		m := a.re.FindStringSubmatch(src)
		if m == nil || m[a.group] == "" {
			continue
		}
		if !a.numeric {
			attrs[a.name] = m[a.group]
			continue
		}
		if v, ok := parser.ParseFloat(m[a.group]); ok {
			attrs[a.name] = v
		}
	}
	if len(attrs) == 0 {
		return nil, errors.Format(errors.ErrMissingAttributes, p.Name(), "ContextAttrs")
	}
	return attrs, nil
}

func invalid(name string, err error) error {
	return errors.Invalid(fmt.Errorf("%w module %q: %v", errors.ErrParserInvalid, name, err), "declarative", "Load")
}
