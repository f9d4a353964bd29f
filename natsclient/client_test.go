package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/metric"
)

// fakeClock drives a breaker without sleeping
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time           { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBreaker(threshold int, maxBackoff time.Duration) (*breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newBreaker(threshold, maxBackoff)
	b.now = clock.now
	return b, clock
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	assert.Zero(t, b.failure())
	assert.Zero(t, b.failure())
	assert.True(t, b.allow())

	assert.Equal(t, time.Second, b.failure())
	assert.False(t, b.allow())
	assert.True(t, b.open())

	total, last := b.failures()
	assert.Equal(t, 3, total)
	assert.False(t, last.IsZero())
}

func TestBreaker_ClosesAfterWindow(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	require.Equal(t, time.Second, b.failure())
	clock.advance(999 * time.Millisecond)
	assert.False(t, b.allow())

	clock.advance(time.Millisecond)
	assert.True(t, b.allow())
}

func TestBreaker_BackoffDoublesUpToMax(t *testing.T) {
	b, clock := newTestBreaker(1, 3*time.Second)

	var windows []time.Duration
	for i := 0; i < 4; i++ {
		w := b.failure()
		windows = append(windows, w)
		clock.advance(w)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, windows)
}

func TestBreaker_SuccessResets(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.failure()
	b.failure()

	b.success()
	assert.True(t, b.allow())
	assert.Equal(t, initialBackoff, b.nextBackoff())
	total, last := b.failures()
	assert.Zero(t, total)
	assert.True(t, last.IsZero())
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

func TestNewClient_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"zero message timeout", WithMessageTimeout(0)},
		{"zero dial timeout", WithTimeout(0)},
		{"negative reconnect wait", WithReconnect(3, -time.Second)},
		{"zero breaker threshold", WithBreaker(0, time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithReconnect(0, 0),
		WithTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, 1, client.Stats().Failures)
}

func TestConnect_CircuitOpenFailsFast(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithReconnect(0, 0),
		WithTimeout(200*time.Millisecond),
		WithBreaker(1, time.Minute),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.Error(t, client.Connect(ctx))
	assert.Equal(t, StatusCircuitOpen, client.Status())

	err = client.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, client.Stats().Failures, "no dial while open")
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(42), "unknown"},
		{ConnectionStatus(-1), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.String())
	}
}

func TestNotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Subscribe(context.Background(), "probes.load", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = client.Publish(context.Background(), "probes.load", []byte("OK"))
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, client.Stats().RTT)
}

func TestClose_IdempotentAndForgetsCredentials(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithToken("secret"),
		WithCredentials("user", "pass"),
	)
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.Empty(t, client.settings.token)
	assert.Empty(t, client.settings.password)
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestNatsOptions(t *testing.T) {
	plain, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	assert.Len(t, plain.natsOptions(), 9)

	full, err := NewClient("nats://localhost:4222",
		WithCredentials("user", "pass"),
		WithToken("t"),
		WithName("ngsi-adapter"),
	)
	require.NoError(t, err)
	assert.Len(t, full.natsOptions(), 12)
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	client, err := NewClient("nats://localhost:4222", WithMetrics(registry))
	require.NoError(t, err)

	client.setStatus(StatusConnected)
	assert.Equal(t, float64(StatusConnected), testutil.ToFloat64(client.metrics.status))

	client.handleReconnect(nil)
	assert.Equal(t, float64(1), testutil.ToFloat64(client.metrics.reconnects))

	client.metrics.received("probes.load")
	assert.Equal(t, float64(1), testutil.ToFloat64(client.metrics.messages.WithLabelValues("probes.load")))

	_, err = NewClient("nats://localhost:4222", WithMetrics(registry))
	assert.Error(t, err, "metrics cannot be registered twice in one registry")
}

func TestHealthCallbacks(t *testing.T) {
	changes := make(chan bool, 4)
	client, err := NewClient("nats://localhost:4222",
		WithHealthChangeCallback(func(healthy bool) { changes <- healthy }),
	)
	require.NoError(t, err)

	next := func() bool {
		select {
		case v := <-changes:
			return v
		case <-time.After(time.Second):
			t.Fatal("no health change")
			return false
		}
	}

	client.handleDisconnect(nil, nil)
	assert.Equal(t, StatusReconnecting, client.Status())
	assert.False(t, next())

	client.handleReconnect(nil)
	assert.Equal(t, StatusConnected, client.Status())
	assert.True(t, next())

	client.handleClosed(nil)
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, next())
}
