package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/device"
	"github.com/bornholm/uitester/internal/suite"
	"github.com/bornholm/uitester/internal/task"
)

// TaskStatus is the state of a task as reported by the server.
type TaskStatus struct {
	task.Snapshot
	ReportURL string `json:"report_url,omitempty"`
}

// APIError is returned when the server answers with a non success envelope.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server responded with code %d: %s", e.Code, e.Msg)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client provides methods to interact with the test API
type Client struct {
	serverURL *url.URL
	http      *http.Client
}

// NewClient creates a new API client. serverURL includes the API mount
// path, for example http://localhost:3002/api.
func NewClient(serverURL string, httpClient *http.Client) (*Client, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server URL: %s", serverURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		serverURL: parsedURL,
		http:      httpClient,
	}, nil
}

func (c *Client) ListDevices(ctx context.Context) ([]device.Status, error) {
	var statuses []device.Status

	if err := c.do(ctx, http.MethodGet, "device/list", nil, &statuses); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return []device.Status{}, nil
		}

		return nil, errors.WithStack(err)
	}

	return statuses, nil
}

func (c *Client) ListSuites(ctx context.Context) ([]suite.Suite, error) {
	var suites []suite.Suite

	if err := c.do(ctx, http.MethodGet, "test/suites", nil, &suites); err != nil {
		return nil, errors.WithStack(err)
	}

	return suites, nil
}

// StartTest requests the execution of a suite on a device and returns the
// task id.
func (c *Client) StartTest(ctx context.Context, deviceID string, suiteID int) (string, error) {
	body := struct {
		DeviceID string `json:"device_id"`
		SuiteID  int    `json:"suite_id"`
	}{
		DeviceID: deviceID,
		SuiteID:  suiteID,
	}

	var res struct {
		TaskID string `json:"task_id"`
	}

	if err := c.do(ctx, http.MethodPost, "test/start", body, &res); err != nil {
		return "", errors.WithStack(err)
	}

	return res.TaskID, nil
}

func (c *Client) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	var status TaskStatus

	if err := c.do(ctx, http.MethodGet, "test/status/"+url.PathEscape(taskID), nil, &status); err != nil {
		return nil, errors.WithStack(err)
	}

	return &status, nil
}

func (c *Client) StopTest(ctx context.Context, taskID string) error {
	if err := c.do(ctx, http.MethodPost, "test/stop/"+url.PathEscape(taskID), nil, nil); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, dest any) error {
	endpoint := c.serverURL.JoinPath(path)

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), &payload)
	if err != nil {
		return errors.WithStack(err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrapf(err, "failed to decode response of %s %s (status %s)", method, path, strconv.Itoa(resp.StatusCode))
	}

	if env.Code != http.StatusOK {
		return errors.WithStack(&APIError{Code: env.Code, Msg: env.Msg})
	}

	if dest == nil || len(env.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Data, dest); err != nil {
		return errors.Wrapf(err, "failed to decode data of %s %s", method, path)
	}

	return nil
}
