package nagios

import (
	"strings"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

// HTTPStatus turns check_http output into a 1/0 availability flag.
//
//	HTTP OK: HTTP/1.1 200 OK - 453 bytes in 0.011 second response time |time=0.011s;;;0.000 size=453B;;;0
type HTTPStatus struct {
	parser.MultiLine
	attr string
}

// NewHTTPStatus creates a check_http parser reporting availability as attr.
func NewHTTPStatus(name, attr string) *HTTPStatus {
	return &HTTPStatus{MultiLine: parser.NewMultiLine(name), attr: attr}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *HTTPStatus) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	line := firstLine(data)
	if !strings.Contains(line, "HTTP") {
		return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid %s found", p.attr)
	}
	up := 0
	if strings.Contains(line, "HTTP OK") {
		up = 1
	}
	return parser.Attributes{p.attr: up}, nil
}

// Service turns check_procs output for one OpenStack service into a 1/0
// running flag.
//
//	PROCS OK: 4 processes with command name 'nova-api'|(null)
type Service struct {
	parser.MultiLine
	attr     string
	commands []string
}

type service struct {
	probe, attr string
	commands    []string
}

var services = []service{
	{"check_cinder_api", "cinder_api", []string{"cinder-api"}},
	{"check_cinder_scheduler", "cinder_schedule", []string{"cinder-schedule"}},
	{"check_glance_api", "glance_api", []string{"glance-api"}},
	{"check_glance_registry", "glance_registry", []string{"glance-registry"}},
	{"check_neutron_server", "quantum_server", []string{"neutron-server"}},
	{"check_nova_api", "nova_api", []string{"nova-api"}},
	{"check_nova_cert", "nova_cert", []string{"nova-cert"}},
	{"check_nova_consoleauth", "nova_consoleaut", []string{"nova-consoleaut"}},
	{"check_nova_novncproxy", "nova_novncproxy", []string{"nova-novncproxy"}},
	{"check_nova_objectstore", "nova_objectstore", []string{"nova-objectstor"}},
	{"check_nova_scheduler", "nova_scheduler", []string{"nova-scheduler"}},
	{"check_quantum_l3_agent", "quantum_l3_agent", []string{"quantum-l3-agent", "neutron-l3-agent"}},
	{"check_quantum_openvswitch_agent", "quantum_openvswitch_agent", []string{"quantum-openvswitch-agent"}},
}

// NewService creates a parser for a service process check matching any of
// the given command names.
func NewService(name, attr string, commands ...string) *Service {
	return &Service{MultiLine: parser.NewMultiLine(name), attr: attr, commands: commands}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Service) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	items := strings.Split(firstLine(data), ":")
	if len(items) < 2 {
		return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid %s data found", p.attr)
	}
	running := 0
	for _, command := range p.commands {
		if strings.Contains(items[1], command) && strings.Contains(items[0], "PROCS OK") {
			running = 1
		}
	}
	return parser.Attributes{p.attr: running}, nil
}

// Hostname reports the host name printed by the check_hostname plugin.
// Replies from a failing NRPE agent are reported as "None".
type Hostname struct {
	parser.MultiLine
}

// NewHostname creates the check_hostname parser.
func NewHostname() *Hostname {
	return &Hostname{MultiLine: parser.NewMultiLine("check_hostname")}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Hostname) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	line := firstLine(data)
	if line == "" {
		return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid hostname found")
	}
	if strings.Contains(line, "NRPE") || strings.Contains(line, "(Return") {
		return parser.Attributes{"hostname": "None"}, nil
	}
	return parser.Attributes{"hostname": line}, nil
}
