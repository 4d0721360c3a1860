package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccollicutt/tracediff/internal/logging"
	"github.com/ccollicutt/tracediff/pkg/differ"
	"github.com/ccollicutt/tracediff/pkg/output"
)

func newTestReport() *output.Report {
	return &output.Report{
		Summary: output.Summary{
			Rule:          "tail",
			RuleType:      "tail",
			ActualLines:   10,
			ExpectedLines: 10,
			Compared:      10,
			Matched:       9,
			Mismatched:    1,
		},
		Mismatches: []differ.Mismatch{
			{Kind: differ.KindField, Index: 3, Key: "C72A", Actual: []string{"P:A4"}, Expected: []string{"P:A5"}},
		},
		Metadata: output.Metadata{
			RunID:      "01HM0000000000000000000000",
			Actual:     "output.log",
			Expected:   "nestest.log",
			ComparedAt: time.Now(),
			Duration:   time.Millisecond,
		},
	}
}

func fastClient() *Client {
	return NewClient(WithRetry(2, time.Millisecond, 5*time.Millisecond))
}

func TestClient_Send_Success(t *testing.T) {
	var receivedBody []byte
	var receivedContentType, receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedAuth = r.Header.Get("Authorization")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	resp := fastClient().Send(context.Background(), newTestReport(), SendOptions{
		URL:   server.URL,
		Token: "secret",
	})

	require.True(t, resp.Success(), "unexpected error: %v", resp.Error)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"status":"ok"}`, resp.Body)
	assert.Equal(t, "application/json", receivedContentType)
	assert.Equal(t, "Bearer secret", receivedAuth)

	var decoded output.Report
	require.NoError(t, json.Unmarshal(receivedBody, &decoded))
	assert.Equal(t, 1, decoded.Summary.Mismatched)
	require.Len(t, decoded.Mismatches, 1)
	assert.Equal(t, "C72A", decoded.Mismatches[0].Key)
}

func TestClient_Send_NoToken(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp := fastClient().Send(context.Background(), newTestReport(), SendOptions{URL: server.URL})

	assert.True(t, resp.Success())
	assert.Empty(t, receivedAuth)
}

func TestClient_Send_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp := fastClient().Send(context.Background(), newTestReport(), SendOptions{URL: server.URL})

	assert.True(t, resp.Success(), "unexpected error: %v", resp.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Send_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resp := fastClient().Send(context.Background(), newTestReport(), SendOptions{URL: server.URL})

	assert.False(t, resp.Success())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Error(t, resp.Error)
	assert.Equal(t, int32(3), calls.Load(), "expected initial attempt plus 2 retries")
}

func TestClient_Send_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	resp := fastClient().Send(context.Background(), newTestReport(), SendOptions{URL: server.URL})

	assert.False(t, resp.Success())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Send_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp := fastClient().Send(context.Background(), newTestReport(), SendOptions{
		URL:     server.URL,
		Timeout: 50 * time.Millisecond,
	})

	assert.False(t, resp.Success())
	assert.Error(t, resp.Error)
}

func TestClient_Send_InvalidURL(t *testing.T) {
	resp := fastClient().Send(context.Background(), newTestReport(), SendOptions{URL: "://bad"})

	assert.False(t, resp.Success())
	assert.Error(t, resp.Error)
}

func TestWithLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(WithLogger(logging.NewNop()), WithRetry(0, time.Millisecond, time.Millisecond))
	resp := c.Send(context.Background(), newTestReport(), SendOptions{URL: server.URL})

	assert.True(t, resp.Success())
}

func TestResponse_Success(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want bool
	}{
		{"200", Response{StatusCode: 200}, true},
		{"299", Response{StatusCode: 299}, true},
		{"300", Response{StatusCode: 300}, false},
		{"error", Response{StatusCode: 200, Error: assert.AnError}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.Success())
		})
	}
}

func TestClient_Ping(t *testing.T) {
	var method, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	resp := fastClient().Ping(context.Background(), SendOptions{URL: server.URL, Token: "t"})

	require.NoError(t, resp.Error)
	assert.Equal(t, http.MethodHead, method)
	assert.Equal(t, "Bearer t", auth)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestClient_Ping_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	resp := fastClient().Ping(context.Background(), SendOptions{URL: url})

	assert.Error(t, resp.Error)
}
