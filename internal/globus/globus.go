// Package globus implements the Globus black-box collaborator the staging
// engine (§4.C) calls to move a Globus-sourced folder onto the HPC's
// filesystem. There is no Globus SDK in the retrieval pack or the wider Go
// ecosystem comparable to the official Python SDK, so this client talks to
// the Globus Transfer REST API directly over net/http — the same bare-http
// pattern the pack's cloud clients (3leaps-gonimbus) fall back to for
// services with no first-party Go SDK (see DESIGN.md).
package globus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const transferAPIBase = "https://transfer.api.globusonline.org/v0.10"

// TransferStatus mirrors the handful of Globus task states the staging
// engine needs to distinguish (spec §4.C's Globus source only cares whether
// a transfer is still active, succeeded, or failed).
type TransferStatus string

const (
	StatusActive    TransferStatus = "ACTIVE"
	StatusSucceeded TransferStatus = "SUCCEEDED"
	StatusFailed    TransferStatus = "FAILED"
)

// Client is a thin wrapper over the Globus Transfer API, authenticated with
// a bearer access token obtained out-of-band (the supervisor's config
// carries a globus_client_id; token acquisition is a deployment concern,
// not modeled here).
type Client struct {
	httpClient  *http.Client
	accessToken string
	baseURL     string
}

// New returns a Client authenticating with accessToken against the
// production Globus Transfer API.
func New(accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		accessToken: accessToken,
		baseURL:     transferAPIBase,
	}
}

// NewWithBaseURL is New with an overridden API base, used by tests to point
// the client at a local fake server.
func NewWithBaseURL(accessToken, baseURL string) *Client {
	c := New(accessToken)
	c.baseURL = baseURL
	return c
}

// InitTransfer submits a transfer from a Globus endpoint/path to the HPC's
// Globus collection/path, returning Globus's task id.
func (c *Client) InitTransfer(ctx context.Context, srcEndpoint, srcPath, dstEndpoint, dstPath string) (string, error) {
	body := map[string]interface{}{
		"DATA_TYPE":            "transfer",
		"source_endpoint":      srcEndpoint,
		"destination_endpoint": dstEndpoint,
		"DATA": []map[string]interface{}{
			{
				"DATA_TYPE":        "transfer_item",
				"source_path":      srcPath,
				"destination_path": dstPath,
				"recursive":        true,
			},
		},
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := c.post(ctx, "/transfer", body, &resp); err != nil {
		return "", errors.Wrap(err, "submitting globus transfer")
	}
	return resp.TaskID, nil
}

// QueryStatus returns the current state of a previously submitted task.
func (c *Client) QueryStatus(ctx context.Context, taskID string) (TransferStatus, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, fmt.Sprintf("/task/%s", taskID), &resp); err != nil {
		return "", errors.Wrapf(err, "querying globus task %s", taskID)
	}
	return TransferStatus(resp.Status), nil
}

// MonitorTransfer polls QueryStatus at interval until the task leaves the
// active state or ctx is cancelled.
func (c *Client) MonitorTransfer(ctx context.Context, taskID string, interval time.Duration) (TransferStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.QueryStatus(ctx, taskID)
		if err != nil {
			return "", err
		}
		if status != StatusActive {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding globus request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "building globus request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling globus transfer api")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("globus transfer api returned status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
