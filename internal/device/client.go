// Package device provides the REST client for the machine's HTTP control
// API: version queries, machine reset, program/SID launching, and disk image
// mounting. File transfer does not go through here; that is the transport's
// job.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/svetzal/r64u-sub000/internal/config"
	"github.com/svetzal/r64u-sub000/internal/constants"
	"github.com/svetzal/r64u-sub000/internal/logging"
)

// retryLogger adapts our logger to the retryablehttp.LeveledLogger interface.
// Only warnings and errors are surfaced; retry chatter stays silent.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Msgf("control api: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Msgf("control api: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Client talks to the device's control API.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
}

// NewClient creates a control API client from configuration.
func NewClient(cfg *config.Config, log *logging.Logger) (*Client, error) {
	if cfg.DeviceHost == "" {
		return nil, fmt.Errorf("device host is empty; set R64U_HOST or pass --host")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = constants.ControlRequestTimeout
	if log != nil {
		retryClient.Logger = &retryLogger{log: log}
	} else {
		retryClient.Logger = nil
	}

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(cfg.ControlBaseURL(), "/"),
	}, nil
}

// VersionInfo is the device's identification response.
type VersionInfo struct {
	Product  string `json:"product"`
	Firmware string `json:"firmware_version"`
	Core     string `json:"core_version"`
	Hostname string `json:"hostname"`
	UniqueID string `json:"unique_id"`
}

// Version queries the device's firmware and core versions.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	if err := c.do(ctx, nethttp.MethodGet, "/v1/version", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Reset resets the machine.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, nethttp.MethodPut, "/v1/machine:reset", nil, nil)
}

// RunPrg loads and runs a program file already present on the device.
func (c *Client) RunPrg(ctx context.Context, devicePath string) error {
	q := url.Values{"file": {devicePath}}
	return c.do(ctx, nethttp.MethodPut, "/v1/runners:run_prg?"+q.Encode(), nil, nil)
}

// PlaySID starts SID playback of a file on the device. song is 1-based;
// 0 plays the default song of the tune.
func (c *Client) PlaySID(ctx context.Context, devicePath string, song int) error {
	q := url.Values{"file": {devicePath}}
	if song > 0 {
		q.Set("songnr", fmt.Sprintf("%d", song))
	}
	return c.do(ctx, nethttp.MethodPut, "/v1/runners:sidplay?"+q.Encode(), nil, nil)
}

// MountDisk mounts a disk image on the device into the given drive ("a"/"b").
func (c *Client) MountDisk(ctx context.Context, drive, imagePath string) error {
	q := url.Values{"image": {imagePath}}
	path := fmt.Sprintf("/v1/drives/%s:mount?%s", url.PathEscape(drive), q.Encode())
	return c.do(ctx, nethttp.MethodPut, path, nil, nil)
}

// do performs one control API request and decodes a JSON response into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
