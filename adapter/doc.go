// Package adapter assembles the running adapter from a checked
// configuration.
//
// A Service owns the parser registry, the broker delivery pipeline, the
// HTTP listener, one UDP listener per configured endpoint, the optional
// NATS listener and the optional admin endpoint (/metrics, /health,
// /parsers). Every listener hands accepted requests to Service.Dispatch,
// which delivers each one on its own goroutine and reports the outcome to
// the ResultFunc.
//
// Deliveries are not tied to the inbound connection: a request accepted
// over HTTP is delivered even if the client disconnects. Stop stops the
// listeners, waits for in-flight deliveries up to its timeout and then
// cancels the rest.
//
//	svc, err := adapter.New(cfg, adapter.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := svc.Start(ctx); err != nil {
//		return err
//	}
//	<-ctx.Done()
//	return svc.Stop(30 * time.Second)
package adapter
