// Package health tracks the state of the adapter's listeners and broker link.
//
// Components report through a Monitor (UpdateHealthy, UpdateDegraded,
// UpdateUnhealthy or Report with an error). AggregateHealth folds the
// individual statuses: any unhealthy component makes the system unhealthy,
// otherwise any degraded one makes it degraded.
//
// Error text reported through Report or FromError is sanitized so URLs,
// paths, addresses and credentials never reach the admin endpoint.
//
// Handler serves the aggregate as JSON, answering 503 when unhealthy.
package health
