package globus_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/globus"
)

func TestMonitorTransferReturnsOnTerminalStatus(t *testing.T) {
	calls := 0
	statuses := []string{"ACTIVE", "ACTIVE", "SUCCEEDED"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := statuses[calls]
		if calls < len(statuses)-1 {
			calls++
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer srv.Close()

	c := globus.NewWithBaseURL("test-token", srv.URL)

	status, err := c.MonitorTransfer(context.Background(), "task-1", 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, globus.StatusSucceeded, status)
	require.Equal(t, len(statuses)-1, calls)
}

func TestInitTransferReturnsTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-42"})
	}))
	defer srv.Close()

	c := globus.NewWithBaseURL("test-token", srv.URL)
	id, err := c.InitTransfer(context.Background(), "src-ep", "/src", "dst-ep", "/dst")
	require.NoError(t, err)
	require.Equal(t, "task-42", id)
}

func TestQueryStatusErrorsOnNonSuccessStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := globus.NewWithBaseURL("bad-token", srv.URL)
	_, err := c.QueryStatus(context.Background(), "task-1")
	require.Error(t, err)
}

func TestTransferStatusConstants(t *testing.T) {
	require.Equal(t, globus.TransferStatus("ACTIVE"), globus.StatusActive)
	require.Equal(t, globus.TransferStatus("SUCCEEDED"), globus.StatusSucceeded)
	require.Equal(t, globus.TransferStatus("FAILED"), globus.StatusFailed)
}
