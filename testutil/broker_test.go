package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyBroker_Responses(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		wantStatus  int
		wantBody    string
	}{
		{"legacy update echoes body", http.MethodPost, "/NGSI10/updateContext", "application/json", `{"a":1}`, http.StatusOK, `{"a":1}`},
		{"v1 update echoes body", http.MethodPost, "/v1/updateContext", "application/json", `{"b":2}`, http.StatusOK, `{"b":2}`},
		{"legacy unknown path json", http.MethodPost, "/NGSI10/queryContext", "application/json", `{}`, http.StatusOK, `{"orionError": {"code": 400}}`},
		{"legacy unknown path xml", http.MethodPost, "/NGSI10/queryContext", "application/xml", `<x/>`, http.StatusOK, "<orionError><code>400</code></orionError>"},
		{"v2 attrs", http.MethodPost, "/v2/entities/1/attrs?type=host&options=append", "application/json", `{}`, http.StatusNoContent, ""},
		{"v2 without type", http.MethodPost, "/v2/entities/1/attrs", "application/json", `{}`, http.StatusBadRequest, `{"error": "BadRequest"}`},
		{"v2 wrong method", http.MethodGet, "/v2/entities/1/attrs?type=host", "", "", http.StatusMethodNotAllowed, `{"error": "Method Not Allowed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewDummyBroker(nil)
			server := httptest.NewServer(b)
			defer server.Close()

			req, err := http.NewRequest(tt.method, server.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, string(body))

			reqs := b.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, tt.method, reqs[0].Method)
			assert.Equal(t, tt.path, reqs[0].URI)
			assert.Equal(t, tt.body, string(reqs[0].Body))
		})
	}
}

func TestDummyBroker_EchoesCorrelator(t *testing.T) {
	server := httptest.NewServer(NewDummyBroker(nil))
	defer server.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/updateContext", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Fiware-Correlator", "corr-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "corr-1", resp.Header.Get("Fiware-Correlator"))
}

func TestDummyBroker_WaitForRequests(t *testing.T) {
	b := NewDummyBroker(nil)
	server := httptest.NewServer(b)
	defer server.Close()

	go func() {
		for i := 0; i < 3; i++ {
			resp, err := http.Post(server.URL+"/v1/updateContext", "application/json", strings.NewReader("{}"))
			if err == nil {
				_ = resp.Body.Close()
			}
		}
	}()

	reqs, err := b.WaitForRequests(3, 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, reqs, 3)
	assert.Equal(t, 3, b.Count())

	_, err = b.WaitForRequests(4, 50*time.Millisecond)
	assert.Error(t, err)
}
