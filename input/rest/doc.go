// Package rest provides the HTTP ingestion listener.
//
// Probes post their output to /{probe}?id={entityId}&type={entityType}. The
// handler answers with a status only:
//
//   - 405 for any method other than POST
//   - 400 when id or type is missing, or the body cannot be read
//   - 404 when the path names no probe ("missing resource") or an unknown one
//   - 413 when the body exceeds the configured limit
//   - 200 once accepted; delivery to the broker happens afterwards
//   - 500 when handling the request panics
//
// The Fiware-Correlator header is echoed back, or generated when absent.
// Bodies sent with Content-Encoding gzip are inflated before the limit is
// applied.
package rest
