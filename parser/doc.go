// Package parser defines the contract that turns raw probe output into
// context attributes.
//
// A Parser exposes two operations, both pure functions of their input:
//
//   - ParseRequest extracts EntityData from the request body, failing with a
//     FormatError when the body violates the expected envelope
//   - ContextAttrs derives the attribute set from that EntityData, failing with
//     a FormatError when no attribute can be derived
//
// Base supplies the defaults every implementation falls back to. MultiLine
// implements the Nagios "TEXT | PERFDATA" envelope shared by the plugin family,
// so a leaf parser only writes ContextAttrs:
//
//	type Load struct{ parser.MultiLine }
//
//	func (p *Load) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
//	    ...
//	}
//
// Parser instances are cached and shared by concurrent requests; they must
// not mutate themselves while serving a request.
package parser
