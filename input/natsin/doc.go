// Package natsin provides the NATS ingestion listener.
//
// Bindings are written subject:parser, comma separated. Every message
// received on a bound subject becomes a probe request whose body is the
// message payload and whose parser is the binding's parser. Like UDP, no
// reply is sent and entity id and type are left to the parser.
//
// The subscriber is any value with the natsclient.Client Subscribe method;
// tests use testutil.MockNATSClient.
package natsin
