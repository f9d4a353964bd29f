// Package nagios holds the parsers for Nagios plugin output. Every parser
// embeds parser.MultiLine for the "TEXT | PERFDATA" envelope and reads its
// attributes from the first line of the text section.
package nagios

import (
	"github.com/c360/ngsiadapter/parser"
)

// Factory creates a parser instance.
type Factory func() parser.Parser

// Factories returns the built-in Nagios parsers keyed by probe name.
func Factories() map[string]Factory {
	factories := map[string]Factory{
		"check_load":      func() parser.Parser { return NewLoad() },
		"check_disk":      func() parser.Parser { return NewDisk() },
		"check_mem.sh":    func() parser.Parser { return NewMemory() },
		"check_users":     func() parser.Parser { return NewUsers() },
		"check_procs":     func() parser.Parser { return NewProcs() },
		"check_http_xifi": func() parser.Parser { return NewHTTPStatus("check_http_xifi", "keystone_proxy") },
		"check_hostname":  func() parser.Parser { return NewHostname() },
		"check_vm":        func() parser.Parser { return NewKeyValue("check_vm", vmKeys) },
		"region":          func() parser.Parser { return NewKeyValue("region", regionKeys) },
	}
	for _, svc := range services {
		svc := svc
		factories[svc.probe] = func() parser.Parser { return NewService(svc.probe, svc.attr, svc.commands...) }
	}
	return factories
}

func firstLine(data *parser.EntityData) string {
	if data == nil {
		return ""
	}
	return parser.FirstLine(data.Data)
}
