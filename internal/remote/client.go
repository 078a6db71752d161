// Package remote talks to the sync server over HTTP. The client maps
// transport and status-code failures onto an error taxonomy the queue
// engine can act on without knowing HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

const (
	defaultPushTimeout = 30 * time.Second

	// enrichment pushes are best-effort and must not hold a drain slot
	shortPushTimeout = 5 * time.Second
)

// Record is an entity as the server represents it on the wire.
type Record struct {
	Type         models.EntityType `json:"type"`
	ID           string            `json:"id"`
	Fields       models.Fields     `json:"fields"`
	Version      int64             `json:"version"`
	Deleted      bool              `json:"deleted"`
	DeletedAt    *time.Time        `json:"deletedAt,omitempty"`
	ModifiedAt   time.Time         `json:"modifiedAt"`
	DeviceID     string            `json:"deviceId,omitempty"`
	DeviceActive bool              `json:"deviceActive,omitempty"`
}

// Entity converts the wire record into a local replica row.
func (r *Record) Entity() *models.Entity {
	return &models.Entity{
		Type:   r.Type,
		ID:     r.ID,
		Fields: r.Fields.Clone(),
		SyncMeta: models.SyncMeta{
			Version:       r.Version,
			ServerVersion: r.Version,
			LastModified:  r.ModifiedAt,
			Synced:        true,
			Deleted:       r.Deleted,
			DeletedAt:     r.DeletedAt,
		},
	}
}

// PushRequest is the body of a create, update or delete call.
type PushRequest struct {
	ID                string        `json:"id"`
	Fields            models.Fields `json:"fields,omitempty"`
	BaseVersion       int64         `json:"baseVersion"`
	SkipConflictCheck bool          `json:"skipConflictCheck,omitempty"`
}

// PushResponse carries the server's authoritative state after an accepted
// push.
type PushResponse struct {
	Version    int64     `json:"version"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// PullResponse is one page of changes since the client's watermark.
type PullResponse struct {
	Records    []Record  `json:"records"`
	ServerTime time.Time `json:"serverTime"`
}

type conflictBody struct {
	Message string  `json:"message"`
	Record  *Record `json:"record"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Client is the HTTP sync client. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	device  func() models.DeviceMetadata
	logger  logging.Logger
}

// NewClient builds a client for the given server base URL. The device
// callback snapshots the local device metadata attached to every push.
func NewClient(baseURL string, tokens TokenSource, device func() models.DeviceMetadata, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		tokens:  tokens,
		device:  device,
		logger:  logger,
	}
}

// Push sends one queue item to the server and returns the authoritative
// version on success.
func (c *Client) Push(ctx context.Context, item *models.QueueItem) (*PushResponse, error) {
	timeout := defaultPushTimeout
	if item.SkipConflictCheck {
		timeout = shortPushTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		method string
		path   string
	)
	switch item.Op {
	case models.OpCreate:
		method, path = http.MethodPost, fmt.Sprintf("/entities/%s", item.EntityType)
	case models.OpUpdate:
		method, path = http.MethodPatch, fmt.Sprintf("/entities/%s/%s", item.EntityType, item.EntityID)
	case models.OpDelete:
		method, path = http.MethodDelete, fmt.Sprintf("/entities/%s/%s", item.EntityType, item.EntityID)
	default:
		return nil, fmt.Errorf("unsupported queue operation %q", item.Op)
	}

	body := PushRequest{
		ID:                item.EntityID,
		Fields:            item.Payload,
		BaseVersion:       item.BaseVersion,
		SkipConflictCheck: item.SkipConflictCheck,
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	var out PushResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %w", err)
	}
	return &out, nil
}

// Pull fetches all records modified since the watermark. A zero since
// fetches everything.
func (c *Client) Pull(ctx context.Context, since time.Time) (*PullResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	path := "/entities"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out PullResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}
	return &out, nil
}

// Ping probes server reachability without authentication side effects.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shortPushTimeout)
	defer cancel()
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}
	if c.device != nil {
		meta := c.device()
		req.Header.Set(common.DeviceIDHeaderName, meta.DeviceID)
		req.Header.Set(common.DeviceActiveHeaderName, fmt.Sprintf("%t", meta.Active))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindRetryable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindRetryable, Message: err.Error()}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, c.statusError(resp.StatusCode, raw)
}

func (c *Client) statusError(status int, raw []byte) *Error {
	e := &Error{Status: status}
	switch {
	case status == http.StatusConflict:
		e.Kind = KindConflict
		var body conflictBody
		if err := json.Unmarshal(raw, &body); err == nil {
			e.Message = body.Message
			e.ServerRecord = body.Record
		}
		return e
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindRetryable
	default:
		e.Kind = KindValidation
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Message = body.Message
	}
	return e
}
