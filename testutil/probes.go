package testutil

// Canonical Nagios plugin outputs.
const (
	LoadOK   = "OK - load average: 0.01, 0.02, 0.05|load1=0.01;1;1;0; load5=0.02;5;5;0; load15=0.05;15;15;0;"
	DiskOK   = "DISK OK - free space: / 4546 MB (92% inode=96%);| /=372MB;4000;4500;0;4917"
	MemOK    = "Memory: OK Total: 1877 MB - Used: 369 MB - 19% used|TOTAL=1969020928;;;; USED=386592768;;;; CACHE=999;;;; BUFFER=71;;;;"
	UsersOK  = "USERS OK - 2 users currently logged in |users=2;10;15;0"
	ProcsOK  = "PROCS OK: 136 processes | procs=136;200;250;0;"
	HTTPOK   = "HTTP OK: HTTP/1.1 200 OK - 453 bytes in 0.003 second response time |time=0.003s;;;0.000000 size=453B;;;0"
	HTTPFail = "HTTP WARNING: HTTP/1.1 404 Not Found - 453 bytes in 0.003 second response time"
)

// MultiLineOK is a probe output with long text and perf data continuation lines.
const MultiLineOK = "DISK OK - free space: / 3326 MB (56%); | /=2643MB;5948;5958;0;5968\n" +
	"/ 15272 MB (77%);\n" +
	"/boot 68 MB (69%);\n" +
	"/home 69357 MB (27%);\n" +
	"/var/log 819 MB (84%); | /boot=68MB;88;93;0;98\n" +
	"/home=69357MB;253404;253409;0;253414\n" +
	"/var/log=818MB;970;975;0;980"

// OWDReport is a one-way-delay report naming its region, so the owd parser
// assigns the entity itself.
const OWDReport = `{"idTest": "Owd-1393612954320", "region": "XIFI_UPM", "type": "Owd", "error": false, ` +
	`"result": "owd_sc_min:26ms, owd_sc_max:27ms, owd_cs_min:76ms, owd_cs_max:79ms, jitter_sc:0.5ms, jitter_cs:3ms "}`
