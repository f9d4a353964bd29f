package natsin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ngsiadapter/errors"
	"github.com/c360/ngsiadapter/health"
	"github.com/c360/ngsiadapter/input"
	"github.com/c360/ngsiadapter/metric"
	"github.com/c360/ngsiadapter/parser"
	"github.com/c360/ngsiadapter/parser/nagios"
	"github.com/c360/ngsiadapter/request"
	"github.com/c360/ngsiadapter/testutil"
)

type stubResolver struct {
	mu      sync.Mutex
	unknown map[string]bool
}

func (r *stubResolver) Resolve(name string) (parser.Parser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unknown[name] {
		return nil, errors.NotFound(fmt.Errorf("unknown probe %q", name), "test", "Resolve")
	}
	return nagios.NewLoad(), nil
}

func (r *stubResolver) ResolveFromPath(path string) (parser.Parser, error) {
	return r.Resolve(path)
}

type recorder struct {
	mu  sync.Mutex
	rcs []*request.Context
}

func (r *recorder) Dispatch(rc *request.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rcs = append(r.rcs, rc)
}

func (r *recorder) all() []*request.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*request.Context(nil), r.rcs...)
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(context.Context, string, func(context.Context, []byte)) error {
	return fmt.Errorf("not connected")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newInput(t *testing.T, sub Subscriber, resolver input.Resolver, rec input.Dispatcher,
	registry *metric.MetricsRegistry, monitor *health.Monitor, bindings ...Binding) *Input {
	t.Helper()
	in, err := NewInput(InputDeps{
		Bindings:        bindings,
		Subscriber:      sub,
		Resolver:        resolver,
		Dispatcher:      rec,
		MetricsRegistry: registry,
		Health:          monitor,
		Logger:          quietLogger(),
	})
	require.NoError(t, err)
	return in
}

func TestParseBindings(t *testing.T) {
	tests := []struct {
		name      string
		list      string
		expected  []Binding
		nWarnings int
	}{
		{"empty", "", nil, 0},
		{"single", "probes.load:check_load", []Binding{{"probes.load", "check_load"}}, 0},
		{"wildcard", "probes.*.disk:check_disk", []Binding{{"probes.*.disk", "check_disk"}}, 0},
		{"missing parser", "probes.load:", nil, 1},
		{"missing subject", ":check_load", nil, 1},
		{"no colon", "probes.load", nil, 1},
		{
			"duplicate subject",
			"a:check_load,a:check_disk",
			[]Binding{{"a", "check_load"}},
			1,
		},
		{
			"mixed",
			" a:check_load , b , c:check_procs",
			[]Binding{{"a", "check_load"}, {"c", "check_procs"}},
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bindings, warnings := ParseBindings(tt.list)
			assert.Equal(t, tt.expected, bindings)
			assert.Len(t, warnings, tt.nWarnings)
		})
	}
}

func TestNewInput_Validation(t *testing.T) {
	mock := testutil.NewMockNATSClient()
	rec := &recorder{}

	_, err := NewInput(InputDeps{Subscriber: mock, Resolver: &stubResolver{}, Dispatcher: rec})
	assert.True(t, errors.IsInvalid(err), "no bindings")

	_, err = NewInput(InputDeps{Bindings: []Binding{{"a", "check_load"}}, Resolver: &stubResolver{}, Dispatcher: rec})
	assert.True(t, errors.IsInvalid(err), "no subscriber")

	_, err = NewInput(InputDeps{
		Bindings:   []Binding{{"a", ""}},
		Subscriber: mock,
		Resolver:   &stubResolver{},
		Dispatcher: rec,
	})
	assert.True(t, errors.IsInvalid(err), "incomplete binding")
}

func TestInput_DispatchesMessages(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockNATSClient()
	rec := &recorder{}
	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	in := newInput(t, mock, &stubResolver{}, rec, registry, monitor, Binding{"probes.load", "check_load"})
	require.NoError(t, in.Start(ctx))

	status, ok := monitor.Get(HealthComponent)
	require.True(t, ok)
	assert.True(t, status.IsHealthy())

	require.NoError(t, mock.Publish(ctx, "probes.load", []byte(testutil.LoadOK)))

	rcs := rec.all()
	require.Len(t, rcs, 1)
	assert.Equal(t, request.OriginNATS, rcs[0].Origin)
	assert.Equal(t, testutil.LoadOK, string(rcs[0].Body))
	assert.Equal(t, "check_load", rcs[0].Parser.Name())
	assert.Empty(t, rcs[0].EntityID)
	assert.NotEmpty(t, rcs[0].TransactionID)

	assert.Equal(t, int64(1), in.MessagesReceived())
	assert.Equal(t, float64(1), promtest.ToFloat64(in.metrics.messagesReceived.WithLabelValues("probes.load")))

	// no reply is published
	assert.Len(t, mock.Published("probes.load"), 1)
}

func TestInput_UnknownParserKeepsSubscription(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockNATSClient()
	rec := &recorder{}
	resolver := &stubResolver{unknown: map[string]bool{"check_nope": true}}

	in := newInput(t, mock, resolver, rec, metric.NewMetricsRegistry(), nil,
		Binding{"probes.nope", "check_nope"}, Binding{"probes.load", "check_load"})
	require.NoError(t, in.Start(ctx))

	require.NoError(t, mock.Publish(ctx, "probes.nope", []byte("OK")))
	require.NoError(t, mock.Publish(ctx, "probes.load", []byte(testutil.LoadOK)))

	assert.Len(t, rec.all(), 1)
	assert.Equal(t, int64(2), in.MessagesReceived())
	assert.Equal(t, int64(1), in.MessagesDropped())
	assert.Equal(t, float64(1), promtest.ToFloat64(in.metrics.dispatchErrors.WithLabelValues("probes.nope")))
}

func TestInput_PanickingDispatcherIsIsolated(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockNATSClient()
	calls := 0
	dispatcher := input.DispatchFunc(func(*request.Context) {
		calls++
		panic("boom")
	})

	in := newInput(t, mock, &stubResolver{}, dispatcher, nil, nil, Binding{"probes.load", "check_load"})
	require.NoError(t, in.Start(ctx))

	assert.NotPanics(t, func() {
		_ = mock.Publish(ctx, "probes.load", []byte(testutil.LoadOK))
		_ = mock.Publish(ctx, "probes.load", []byte(testutil.LoadOK))
	})
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), in.MessagesDropped())
}

func TestInput_StopHaltsDispatch(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockNATSClient()
	rec := &recorder{}
	monitor := health.NewMonitor()

	in := newInput(t, mock, &stubResolver{}, rec, nil, monitor, Binding{"probes.load", "check_load"})
	require.NoError(t, in.Start(ctx))

	in.Stop()
	require.NoError(t, mock.Publish(ctx, "probes.load", []byte(testutil.LoadOK)))
	assert.Empty(t, rec.all())
	_, ok := monitor.Get(HealthComponent)
	assert.False(t, ok)

	// restarting does not subscribe twice
	require.NoError(t, in.Start(ctx))
	assert.Equal(t, 1, mock.Subscriptions("probes.load"))
	require.NoError(t, mock.Publish(ctx, "probes.load", []byte(testutil.LoadOK)))
	assert.Len(t, rec.all(), 1)
}

func TestInput_SubscribeFailure(t *testing.T) {
	monitor := health.NewMonitor()
	in := newInput(t, failingSubscriber{}, &stubResolver{}, &recorder{}, nil, monitor,
		Binding{"probes.load", "check_load"})

	err := in.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	status, ok := monitor.Get(HealthComponent)
	require.True(t, ok)
	assert.True(t, status.IsUnhealthy())
}
