// Package broker delivers probe requests to the context broker.
//
// A Pipeline runs the stages of one request in order: the resolved parser
// splits the body and derives the attributes, the reception time is added as
// the _timestamp attribute, the ngsi package renders the update for the
// configured broker API, and the update is posted with up to Retries+1
// attempts.
//
// Only transport failures (refused or reset connections, timeouts) are
// retried, with exponential backoff starting at RetryDelay. Any HTTP
// response ends the attempts. For the v2 API a status other than 204 is
// reported as a ProtocolError; for the other APIs every response is a
// success and an orionError code embedded in the body only raises the log
// level of the response line.
//
// Outbound connections to the broker are capped at MaxRequests. Requests
// beyond the cap wait for a free connection.
//
// Failures before the network stage (FormatError, ValidationError) never
// produce a broker request.
package broker
