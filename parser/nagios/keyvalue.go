package nagios

import (
	"strings"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

// valueStyle controls how a raw value is cleaned before it becomes an attribute.
type valueStyle int

const (
	// stripSpace removes every whitespace character
	stripSpace valueStyle = iota
	// stripQuotes removes whitespace and single quotes
	stripQuotes
	// hashList turns '#' separated lists into comma separated ones
	hashList
)

type keySpec struct {
	key   string
	style valueStyle
}

var vmKeys = []keySpec{
	{"uid", stripSpace},
	{"host_id", stripSpace},
	{"host_name", stripSpace},
}

var regionKeys = []keySpec{
	{"coreUsed", stripSpace},
	{"coreEnabled", stripSpace},
	{"coreTot", stripSpace},
	{"vmUsed", stripSpace},
	{"vmTot", stripSpace},
	{"hdUsed", stripSpace},
	{"hdTot", stripSpace},
	{"ramUsed", stripSpace},
	{"ramTot", stripSpace},
	{"nUser", stripSpace},
	{"location", stripSpace},
	{"latitude", stripQuotes},
	{"longitude", stripQuotes},
	{"ipUsed", stripQuotes},
	{"ipAvailable", stripQuotes},
	{"ipTot", stripQuotes},
	{"vmImage", hashList},
	{"vmList", hashList},
	{"timeSample", stripSpace},
}

// KeyValue parses data collector output made of "key::value" pairs separated
// by commas. Only known keys become attributes, and empty values are dropped.
//
//	coreUsed::12, coreTot::48, location::Spain, latitude::'40.4', vmList::vm1#vm2
type KeyValue struct {
	parser.MultiLine
	keys []keySpec
}

// NewKeyValue creates a key::value parser accepting the given keys.
func NewKeyValue(name string, keys []keySpec) *KeyValue {
	return &KeyValue{MultiLine: parser.NewMultiLine(name), keys: keys}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *KeyValue) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	attrs := parser.Attributes{}
	for _, element := range strings.Split(firstLine(data), ",") {
		pair := strings.Split(element, "::")
		if len(pair) < 2 {
			continue
		}
		key := removeSpace(pair[0])
		for _, spec := range p.keys {
			if spec.key != key {
				continue
			}
			if v := clean(pair[1], spec.style); v != "" {
				attrs[key] = v
			}
		}
	}
	if len(attrs) == 0 {
		return nil, errors.Format(errors.ErrMissingAttributes, p.Name(), "ContextAttrs")
	}
	return attrs, nil
}

func clean(value string, style valueStyle) string {
	switch style {
	case stripQuotes:
		return strings.ReplaceAll(removeSpace(value), "'", "")
	case hashList:
		return strings.ReplaceAll(value, "#", ",")
	default:
		return removeSpace(value)
	}
}

func removeSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
