package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
	assert.Contains(t, out, server.URL)
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestHealthCommand_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := runApp(t, "--server-url", url, "server", "health")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "zviewer CLI")
	assert.Contains(t, out, "Version: dev")
}

func TestClientScoreCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/score/t1abc", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"requested": "t1abc",
			"address":   "t1abc",
			"score":     75,
			"source":    "live",
			"verdict":   "Use shielded addresses (zs1...) for max privacy",
			"share_url": "https://twitter.com/intent/tweet?text=x",
		})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "score", "--jq", ".score", "t1abc")
	require.NoError(t, err)
	assert.Equal(t, "75\n", out)

	out, err = runApp(t, "--server-url", server.URL, "client", "score", "t1abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Score:    75% Shielded")
	assert.Contains(t, out, "Source:   live")
}

func TestClientScoreCommand_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid characters in address"})
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "client", "score", "t1abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid characters in address")
}

func TestClientDemoCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/demo", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"address": "zs1demo", "score": 100, "source": "demo"})
	}))
	defer server.Close()

	out, err := runApp(t, "--json", "--server-url", server.URL, "client", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, `"score": 100`)
	assert.Contains(t, out, `"source": "demo"`)
}

func TestHistoryList_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := runApp(t, "history", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url is required")
}

func TestHistoryGet_InvalidID(t *testing.T) {
	_, err := runApp(t, "history", "get", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid lookup id")
}

func TestFormatReason(t *testing.T) {
	reason := "no_transactions"
	empty := ""
	assert.Equal(t, "no_transactions", formatReason(&reason))
	assert.Equal(t, "-", formatReason(&empty))
	assert.Equal(t, "-", formatReason(nil))
}
