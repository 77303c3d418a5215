// Package aes67d wraps the REST API of the local aes67-linux-daemon.
package aes67d

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/aes67-nmos/internal/log"
)

// DefaultTimeout bounds every daemon request.
const DefaultTimeout = 5 * time.Second

// SinkPayload is the body of PUT /api/sink/{id}. Map duplicates the mono
// channel on both playback legs.
type SinkPayload struct {
	UseSDP bool   `json:"use_sdp"`
	SDP    string `json:"sdp"`
	Map    []int  `json:"map"`
	Delay  int    `json:"delay"`
}

// Sink is one entry of GET /api/sinks.
type Sink struct {
	ID int `json:"id"`
}

// Client talks to a single daemon instance. All operations are mutually
// exclusive (one in flight at a time) because the daemon's sink model is
// non-transactional.
type Client struct {
	mu     sync.Mutex
	base   string
	sinkID int
	http   *http.Client
	logger zerolog.Logger
}

// New creates a client for the daemon at base managing the given sink.
func New(base string, sinkID int) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		sinkID: sinkID,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: log.WithComponent("aes67d"),
	}
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string { return c.base }

// SinkID returns the managed sink identifier.
func (c *Client) SinkID() int { return c.sinkID }

// UpsertSink configures the managed sink. Any non-2xx status fails.
func (c *Client) UpsertSink(ctx context.Context, payload SinkPayload) error {
	url := fmt.Sprintf("%s/api/sink/%d", c.base, c.sinkID)
	c.logger.Info().
		Str("event", "sink.upsert").
		Int(log.FieldSinkID, c.sinkID).
		Bool("use_sdp", payload.UseSDP).
		Msg("configuring daemon sink")

	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.do(ctx, http.MethodPut, url, payload)
	if err != nil {
		return &DaemonError{Sentinel: ErrUnavailable, Operation: "upsert sink", Err: err}
	}
	defer drain(res)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError("upsert sink", res)
	}
	return nil
}

// DeleteSink removes the managed sink. 200, 204 and 404 all count as
// success: an absent sink is already deleted.
func (c *Client) DeleteSink(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/sink/%d", c.base, c.sinkID)
	c.logger.Info().
		Str("event", "sink.delete").
		Int(log.FieldSinkID, c.sinkID).
		Msg("deleting daemon sink")

	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.do(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return &DaemonError{Sentinel: ErrUnavailable, Operation: "delete sink", Err: err}
	}
	defer drain(res)
	switch res.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return statusError("delete sink", res)
}

// ListSinks returns all sinks the daemon currently has configured.
func (c *Client) ListSinks(ctx context.Context) ([]Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.do(ctx, http.MethodGet, c.base+"/api/sinks", nil)
	if err != nil {
		return nil, &DaemonError{Sentinel: ErrUnavailable, Operation: "list sinks", Err: err}
	}
	defer drain(res)
	if res.StatusCode != http.StatusOK {
		return nil, statusError("list sinks", res)
	}
	var p struct {
		Sinks []Sink `json:"sinks"`
	}
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, &DaemonError{Sentinel: ErrBadResponse, Operation: "list sinks", Err: err}
	}
	return p.Sinks, nil
}

// SinkStatus fetches the managed sink's status. 400 and 404 map to a nil
// map: both are common before any activation configured the sink.
func (c *Client) SinkStatus(ctx context.Context) (map[string]any, error) {
	url := fmt.Sprintf("%s/api/sink/status/%d", c.base, c.sinkID)
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DaemonError{Sentinel: ErrUnavailable, Operation: "sink status", Err: err}
	}
	defer drain(res)
	switch res.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, statusError("sink status", res)
	}
	return decodeObject(res, "sink status")
}

// Config fetches the daemon configuration document.
func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, c.base+"/api/config", "config")
}

// PTPStatus fetches the daemon PTP status document.
func (c *Client) PTPStatus(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, c.base+"/api/ptp/status", "ptp status")
}

func (c *Client) getObject(ctx context.Context, url, op string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DaemonError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	defer drain(res)
	if res.StatusCode != http.StatusOK {
		return nil, statusError(op, res)
	}
	return decodeObject(res, op)
}

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func decodeObject(res *http.Response, op string) (map[string]any, error) {
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, &DaemonError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return out, nil
}

func statusError(op string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &DaemonError{
		Sentinel:  ErrStatus,
		Operation: op,
		Status:    res.StatusCode,
		Body:      strings.TrimSpace(string(body)),
	}
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	_ = res.Body.Close()
}
