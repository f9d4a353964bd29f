package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ngsi-adapter version "+Version+" (build "+BuildTime+")\n", out)
}

func TestCheckCommand(t *testing.T) {
	out, err := execute(t, "check", "-b", "http://orion:1026/v2", "-r", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "broker=http://orion:1026/v2 api=v2")
	assert.Contains(t, out, "retries=4")
	assert.Contains(t, out, "Configuration is valid")
}

func TestCheckCommand_ReportsWarnings(t *testing.T) {
	out, err := execute(t, "check", "-u", "127.0.0.1:9000:owd,bogus")
	require.NoError(t, err)
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "udp=1")
}

func TestCheckCommand_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad broker url", []string{"-b", "ftp://orion"}},
		{"negative retries", []string{"-r", "-1"}},
		{"zero max requests", []string{"-m", "0"}},
		{"bad log level", []string{"-l", "LOUD"}},
		{"subjects without nats url", []string{"--natsSubjects", "probes.load:check_load"}},
		{"missing config file", []string{"--config", "/nonexistent/adapter.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"check"}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestParsersCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "parsers", "-P", dir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "Search path:", lines[0])
	assert.Equal(t, "  "+dir, lines[1])
	assert.Equal(t, "  builtin", lines[2])
	assert.Contains(t, out, "  check_load\n")
	assert.Contains(t, out, "  owd\n")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "op", "Test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, Version, entry["version"])
	assert.Equal(t, "Test", entry["op"])
}

func TestNewLogger_TextDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "DEBUG", "text")
	logger.Debug("probe parsed")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "source=")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
