package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify_SendsRequestWithAuthHeader(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/notify", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(Response{Success: true, NotificationID: "n-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	err := client.Notify(context.Background(), "Log your expenses", "It has been a while.", "reminder-trip-1")
	require.NoError(t, err)

	assert.Equal(t, "Log your expenses", received.Title)
	assert.Equal(t, "It has been a while.", received.Body)
	assert.Equal(t, "reminder-trip-1", received.Tag)
}

func TestNotify_SurfacesFacadeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(Response{Error: "downstream unavailable"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	err := client.Notify(context.Background(), "Budget alert", "body", "budget-critical-t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downstream unavailable")
}

func TestNotify_RequiresTitle(t *testing.T) {
	client := NewClient("http://localhost:0", "test-key")
	err := client.Notify(context.Background(), "", "body", "tag")
	require.Error(t, err)
}

func TestRequestPermission_DenialIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/permission", r.URL.Path)
		json.NewEncoder(w).Encode(PermissionResponse{Granted: false})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	granted, err := client.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestRequestPermission_CachesAnswer(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(PermissionResponse{Granted: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	for i := 0; i < 5; i++ {
		granted, err := client.RequestPermission(context.Background())
		require.NoError(t, err)
		assert.True(t, granted)
	}
	assert.Equal(t, 1, calls, "repeated queries within the TTL hit the cache")
}

func TestRequestPermission_TransportFailureIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.RequestPermission(context.Background())
	require.Error(t, err)
}

func TestLogNotifier_AlwaysGranted(t *testing.T) {
	n := NewLogNotifier()

	granted, err := n.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.NoError(t, n.Notify(context.Background(), "title", "body", "tag"))
}
