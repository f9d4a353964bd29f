// Package retry runs an operation again with exponential backoff until it
// succeeds or a bound is reached.
//
// # Overview
//
// Do runs an operation up to MaxAttempts times, sleeping between attempts with an
// exponentially growing delay. The broker delivery loop uses it with
// ForRetries(retries, delay), which yields retries+1 total attempts.
//
//	err := retry.Do(ctx, retry.ForRetries(2, time.Second), func() error {
//	    resp, err := send()
//	    if err != nil {
//	        return err // transport failure, try again
//	    }
//	    last = resp // any response ends the loop
//	    return nil
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately and are returned as-is.
// When every attempt fails, Do returns an *ExhaustedError that records the attempt
// count and unwraps to the last error.
//
// # Hooks
//
// OnRetry is called before each backoff sleep with the number of the upcoming attempt,
// the error that triggered it, and the delay. Callers use it for logging and metrics.
//
// # Context Cancellation
//
// Retrying stops as soon as the context is cancelled, either after an attempt or
// during the backoff delay.
package retry
