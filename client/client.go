// Package client talks to the rencfs-desktop daemon and orchestrates vault
// changes on the front-end side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/radumarias/rencfs-desktop/api"
)

// DefaultTimeout covers an unlock, which waits out the daemon's grace period
// before replying. Use OperationTimeout when the daemon's timings are known.
const DefaultTimeout = 60 * time.Second

// OperationTimeout bounds the slowest call, a relocate, which stops the
// process and then waits out a fresh grace period.
func OperationTimeout(grace, stop time.Duration) time.Duration {
	return 2*(grace+stop) + 30*time.Second
}

// TransportError is returned when a call fails without a structured lifecycle
// error: the daemon is unreachable, or it answered with an unexpected status.
type TransportError struct {
	// Status is the HTTP status, or 0 when no response was received.
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return "daemon unreachable: " + e.Message
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client calls the lifecycle service of one daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// New returns a Client for the daemon at baseURL, such as
// "http://127.0.0.1:50051".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) vaultPath(id int64, op string) string {
	return "/api/v1/vaults/" + strconv.FormatInt(id, 10) + "/" + op
}

// Lock asks the daemon to stop the vault's filesystem process.
func (c *Client) Lock(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, c.vaultPath(id, "lock"), nil, nil)
}

// Unlock asks the daemon to start the vault's filesystem process.
func (c *Client) Unlock(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, c.vaultPath(id, "unlock"), nil, nil)
}

// ChangeMountPoint tells the daemon the mount point changed. oldMountPoint is
// the value before the record was updated.
func (c *Client) ChangeMountPoint(ctx context.Context, id int64, oldMountPoint string) error {
	return c.do(ctx, http.MethodPost, c.vaultPath(id, "mount-point"), api.StringRequest{Value: oldMountPoint}, nil)
}

// ChangeDataDir tells the daemon the data directory changed. oldDataDir is
// the value before the record was updated.
func (c *Client) ChangeDataDir(ctx context.Context, id int64, oldDataDir string) error {
	return c.do(ctx, http.MethodPost, c.vaultPath(id, "data-dir"), api.StringRequest{Value: oldDataDir}, nil)
}

// Status returns what the daemon tracks for the vault.
func (c *Client) Status(ctx context.Context, id int64) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(ctx, http.MethodGet, c.vaultPath(id, "status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Hello returns the daemon's greeting for name.
func (c *Client) Hello(ctx context.Context, name string) (string, error) {
	var out api.HelloResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/hello", api.HelloRequest{Name: name}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Health reports whether the daemon answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransportError{Status: resp.StatusCode, Message: "decoding response", Err: err}
		}
		return nil
	}

	if resp.StatusCode == http.StatusInternalServerError {
		if value := resp.Header.Get(api.ServiceErrorHeader); value != "" {
			if se, err := api.DecodeServiceError(value); err == nil {
				return se
			}
		}
	}
	return &TransportError{Status: resp.StatusCode, Message: errorMessage(resp)}
}

func errorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.Status
	}
	var er api.ErrorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		return er.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return resp.Status
}

// IsUnreachable reports whether err means no daemon answered.
func IsUnreachable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status == 0
}
