package nagios

import (
	"regexp"
	"strings"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/parser"
)

// Load parses check_load output into cpuLoadPct, the one minute load average.
//
//	OK - load average: 0.00, 0.01, 0.05|load1=0.000;1.000;1.000;0; ...
type Load struct {
	parser.MultiLine
}

// NewLoad creates the check_load parser.
func NewLoad() *Load {
	return &Load{MultiLine: parser.NewMultiLine("check_load")}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Load) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	items := strings.Split(firstLine(data), ":")
	if len(items) > 1 && items[1] != "" {
		if v, ok := parser.ParseFloat(strings.Split(items[1], ",")[0]); ok {
			return parser.Attributes{"cpuLoadPct": v}, nil
		}
	}
	return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid load data found")
}

// Disk parses check_disk output into freeSpacePct. Only a single partition or
// a group of partitions (-g option) is supported.
//
//	DISK OK - free space: mygroup 25484 MB (85% inode=95%);| mygroup=4151MB;31071;31121;0;31171
type Disk struct {
	parser.MultiLine
}

var freeSpacePct = regexp.MustCompile(`([^(]+\()(\w+)%([^)]+\))`)

// NewDisk creates the check_disk parser.
func NewDisk() *Disk {
	return &Disk{MultiLine: parser.NewMultiLine("check_disk")}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Disk) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	items := strings.Split(firstLine(data), ":")
	if len(items) > 1 && items[1] != "" {
		groups := strings.Split(items[1], ";")
		if len(groups) == 2 && strings.TrimSpace(groups[1]) == "" {
			group := groups[0]
			if m := freeSpacePct.FindStringSubmatchIndex(group); m != nil {
				group = group[:m[0]] + group[m[4]:m[5]] + group[m[1]:]
			}
			if v, ok := parser.ParseFloat(group); ok {
				return parser.Attributes{"freeSpacePct": v}, nil
			}
		}
	}
	return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid disk data found")
}

// Memory parses check_mem.sh output into usedMemPct.
//
//	Memory: OK Total: 1877 MB - Used: 369 MB - 19% used|TOTAL=1969020928;;;; USED=386584576;;;;
type Memory struct {
	parser.MultiLine
}

// NewMemory creates the check_mem.sh parser.
func NewMemory() *Memory {
	return &Memory{MultiLine: parser.NewMultiLine("check_mem.sh")}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Memory) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	if item := parser.Field(firstLine(data), "-", 2); item != "" {
		if v, ok := parser.ParseFloat(strings.Split(item, "%")[0]); ok {
			return parser.Attributes{"usedMemPct": v}, nil
		}
	}
	return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid memory data found")
}

// Users parses check_users output into the number of logged in users.
//
//	USERS OK - 2 users currently logged in |users=2;10;15;0
type Users struct {
	parser.MultiLine
}

// NewUsers creates the check_users parser.
func NewUsers() *Users {
	return &Users{MultiLine: parser.NewMultiLine("check_users")}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Users) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	if item := parser.Field(firstLine(data), "-", 1); item != "" {
		if v, ok := parser.ParseFloat(firstWord(item)); ok {
			return parser.Attributes{"users": v}, nil
		}
	}
	return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid users data found")
}

// Procs parses check_procs output into the number of processes.
//
//	PROCS OK: 136 processes | procs=136;200;400;0;
type Procs struct {
	parser.MultiLine
}

// NewProcs creates the check_procs parser.
func NewProcs() *Procs {
	return &Procs{MultiLine: parser.NewMultiLine("check_procs")}
}

// ContextAttrs implements parser.AttrsExtractor.
func (p *Procs) ContextAttrs(data *parser.EntityData) (parser.Attributes, error) {
	if item := parser.Field(firstLine(data), ":", 1); item != "" {
		if v, ok := parser.ParseFloat(firstWord(item)); ok {
			return parser.Attributes{"procs": v}, nil
		}
	}
	return nil, errors.Formatf(p.Name(), "ContextAttrs", "no valid procs data found")
}

func firstWord(s string) string {
	return strings.Split(strings.TrimSpace(s), " ")[0]
}
