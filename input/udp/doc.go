// Package udp provides the UDP ingestion listener.
//
// Each Input binds one Endpoint, written host:port:parser in configuration.
// Every datagram becomes a probe request whose body is the datagram payload
// and whose parser is the endpoint's parser, not a path. Entity id and type
// are left to the parser. No reply is sent.
//
// ParseEndpoints fills an empty host or port from the listener defaults and
// skips, with a warning, items missing the parser name.
//
// An unresolvable parser name is logged per datagram; it never closes the
// socket. Socket binding is retried with the default backoff.
package udp
