package udp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

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
)

type stubResolver struct {
	mu    sync.Mutex
	fail  int
	calls int
}

func (r *stubResolver) Resolve(name string) (parser.Parser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.calls <= r.fail {
		return nil, errors.NotFound(fmt.Errorf("unknown probe %q", name), "test", "Resolve")
	}
	return nagios.NewLoad(), nil
}

func (r *stubResolver) ResolveFromPath(path string) (parser.Parser, error) {
	return r.Resolve(path)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect() (input.Dispatcher, <-chan *request.Context) {
	ch := make(chan *request.Context, 10)
	return input.DispatchFunc(func(rc *request.Context) { ch <- rc }), ch
}

func TestParseEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		list      string
		expected  []Endpoint
		nWarnings int
	}{
		{"empty", "", nil, 0},
		{"full", "127.0.0.1:5000:check_load", []Endpoint{{"127.0.0.1", 5000, "check_load"}}, 0},
		{"default host", ":5000:check_disk", []Endpoint{{"0.0.0.0", 5000, "check_disk"}}, 0},
		{"default port", "localhost::check_users", []Endpoint{{"localhost", 1337, "check_users"}}, 0},
		{"missing parser", "localhost:5000", nil, 1},
		{"empty parser", "localhost:5000:", nil, 1},
		{"invalid port", "localhost:abc:check_load", nil, 1},
		{
			"mixed",
			"h1:1:check_load, h2:2, :3:check_procs",
			[]Endpoint{{"h1", 1, "check_load"}, {"0.0.0.0", 3, "check_procs"}},
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoints, warnings := ParseEndpoints(tt.list, "0.0.0.0", 1337)
			assert.Equal(t, tt.expected, endpoints)
			assert.Len(t, warnings, tt.nWarnings)
		})
	}
}

func TestEndpoint_Strings(t *testing.T) {
	ep := Endpoint{Host: "127.0.0.1", Port: 5000, Parser: "check_load"}
	assert.Equal(t, "127.0.0.1:5000", ep.Address())
	assert.Equal(t, "127.0.0.1:5000:check_load", ep.String())
}

func TestNewInput_Validation(t *testing.T) {
	dispatcher, _ := collect()

	_, err := NewInput(InputDeps{Endpoint: Endpoint{Host: "127.0.0.1", Port: 70000, Parser: "x"},
		Resolver: &stubResolver{}, Dispatcher: dispatcher})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewInput(InputDeps{Endpoint: Endpoint{Host: "127.0.0.1"},
		Resolver: &stubResolver{}, Dispatcher: dispatcher})
	require.Error(t, err)

	_, err = NewInput(InputDeps{Endpoint: Endpoint{Host: "127.0.0.1", Parser: "x"}})
	require.Error(t, err)
}

func startInput(t *testing.T, deps InputDeps) *Input {
	t.Helper()

	in, err := NewInput(deps)
	require.NoError(t, err)
	require.NoError(t, in.Start(context.Background()))
	t.Cleanup(func() { _ = in.Stop(time.Second) })
	require.NotNil(t, in.Addr())
	return in
}

func send(t *testing.T, addr net.Addr, payload string) {
	t.Helper()

	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func TestInput_DispatchesDatagrams(t *testing.T) {
	dispatcher, received := collect()
	monitor := health.NewMonitor()

	in := startInput(t, InputDeps{
		Endpoint:   Endpoint{Host: "127.0.0.1", Port: 0, Parser: "check_load"},
		Resolver:   &stubResolver{},
		Dispatcher: dispatcher,
		Health:     monitor,
		Logger:     quietLogger(),
	})

	status, ok := monitor.Get(in.Name())
	require.True(t, ok)
	assert.True(t, status.IsHealthy())

	send(t, in.Addr(), "OK - load average: 0.01, 0.02, 0.05")

	select {
	case rc := <-received:
		assert.Equal(t, request.OriginUDP, rc.Origin)
		assert.Equal(t, "OK - load average: 0.01, 0.02, 0.05", string(rc.Body))
		assert.Equal(t, "check_load", rc.Parser.Name())
		assert.NotEmpty(t, rc.TransactionID)
		assert.Empty(t, rc.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram was not dispatched")
	}
	assert.Equal(t, int64(1), in.DatagramsReceived())
}

func TestInput_UnknownParserKeepsSocket(t *testing.T) {
	dispatcher, received := collect()
	registry := metric.NewMetricsRegistry()

	in := startInput(t, InputDeps{
		Endpoint:        Endpoint{Host: "127.0.0.1", Port: 0, Parser: "check_load"},
		Resolver:        &stubResolver{fail: 1},
		Dispatcher:      dispatcher,
		MetricsRegistry: registry,
		Logger:          quietLogger(),
	})

	send(t, in.Addr(), "first")
	require.Eventually(t, func() bool { return in.DatagramsReceived() == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, in.Addr(), "second")
	select {
	case rc := <-received:
		assert.Equal(t, "second", string(rc.Body))
	case <-time.After(2 * time.Second):
		t.Fatal("second datagram was not dispatched")
	}

	assert.Equal(t, 1.0, promtest.ToFloat64(in.metrics.dispatchErrors))
	assert.Equal(t, 2.0, promtest.ToFloat64(in.metrics.datagramsReceived))
}

func TestInput_PanickingDispatcher(t *testing.T) {
	var calls int
	var mu sync.Mutex
	dispatcher := input.DispatchFunc(func(*request.Context) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	})

	in := startInput(t, InputDeps{
		Endpoint:   Endpoint{Host: "127.0.0.1", Port: 0, Parser: "check_load"},
		Resolver:   &stubResolver{},
		Dispatcher: dispatcher,
		Logger:     quietLogger(),
	})

	send(t, in.Addr(), "a")
	send(t, in.Addr(), "b")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInput_StartStop(t *testing.T) {
	dispatcher, _ := collect()
	monitor := health.NewMonitor()

	in, err := NewInput(InputDeps{
		Endpoint:   Endpoint{Host: "127.0.0.1", Port: 0, Parser: "check_load"},
		Resolver:   &stubResolver{},
		Dispatcher: dispatcher,
		Health:     monitor,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)

	assert.Nil(t, in.Addr())
	assert.NoError(t, in.Stop(time.Second), "stop before start is a no-op")

	require.NoError(t, in.Start(context.Background()))
	require.NoError(t, in.Start(context.Background()), "start is idempotent")
	require.NoError(t, in.Stop(time.Second))
	assert.Nil(t, in.Addr())

	_, ok := monitor.Get(in.Name())
	assert.False(t, ok)

	// restart binds a new socket
	require.NoError(t, in.Start(context.Background()))
	assert.NotNil(t, in.Addr())
	require.NoError(t, in.Stop(time.Second))
}

func TestInput_BindFailure(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	port := occupied.LocalAddr().(*net.UDPAddr).Port
	dispatcher, _ := collect()
	monitor := health.NewMonitor()

	in, err := NewInput(InputDeps{
		Endpoint:   Endpoint{Host: "127.0.0.1", Port: port, Parser: "check_load"},
		Resolver:   &stubResolver{},
		Dispatcher: dispatcher,
		Health:     monitor,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	in.retryConfig.InitialDelay = time.Millisecond
	in.retryConfig.MaxAttempts = 2

	err = in.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	status, ok := monitor.Get(in.Name())
	require.True(t, ok)
	assert.True(t, status.IsUnhealthy())
}
