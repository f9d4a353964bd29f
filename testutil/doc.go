// Package testutil provides test doubles for the adapter's collaborators.
//
// DummyBroker reproduces the wire contract of the context broker: for the v2
// API it answers 204 when the path names an entity's attributes and carries
// a type parameter, otherwise 400 with {"error":"BadRequest"}. For the other
// APIs it always answers 200, echoing the request body when the path is a
// valid updateContext resource and carrying an orionError with code 400
// otherwise. Every request is recorded for later inspection.
//
// MockNATSClient is an in-memory publish/subscribe client matching the
// subscription signature of natsclient.Client.
//
// Probe samples (LoadOK, DiskOK, ...) are canonical Nagios plugin outputs.
package testutil
