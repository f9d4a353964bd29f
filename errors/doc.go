// Package errors provides standardized error handling for the adapter.
//
// # Overview
//
// Errors carry two independent labels. The class (Transient, Invalid, Fatal)
// decides what the caller does next: only transient errors are retried. The
// kind records which stage of the request pipeline failed:
//
//   - FormatError: the probe body violates its envelope, or no attribute could be derived
//   - NotFoundError: no parser search directory holds the requested probe name
//   - InvalidError: a parser resolved but does not expose the parser contract
//   - ValidationError: the request lacks its entity id or type
//   - TransportError: the broker could not be reached (the only retryable kind)
//   - ProtocolError: the broker answered with an application error code in its body
//
// # Constructors
//
// Pipeline errors are created with the kind constructors:
//
//	if len(attrs) == 0 {
//	    return nil, errors.Format(errors.ErrMissingAttributes, "nagios", "ContextAttrs")
//	}
//
// Infrastructure errors follow the wrapping pattern
// "component.method: action failed: %w":
//
//	if err := l.bind(); err != nil {
//	    return errors.WrapFatal(err, "udp", "Start", "socket bind")
//	}
//
// Both preserve the chain, so errors.Is against the sentinel variables keeps working.
package errors
