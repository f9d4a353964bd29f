// Package natsclient wraps a core NATS connection with a connect-time circuit
// breaker, automatic reconnection and health callbacks.
//
// The adapter uses it to receive probe output published on NATS subjects (see
// package natsin). Only core publish/subscribe is exposed.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Subscribe(ctx, "probes.load", func(msgCtx context.Context, data []byte) {
//	    // msgCtx is bounded by the message timeout (30s by default)
//	})
//
// # Circuit Breaker
//
// After five consecutive connect failures (see WithBreaker) the circuit opens
// and Connect returns ErrCircuitOpen without dialing. It closes again once the
// backoff window passes; each further opening doubles the window, up to one
// minute by default.
//
// # Lifecycle
//
// Disconnected → Connecting → Connected → Reconnecting → Connected. Close
// unsubscribes, drains within the context deadline and clears credentials; it
// is safe to call more than once.
package natsclient
