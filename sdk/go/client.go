package arcstudiosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Arc Studio HTTP API client.
type Client struct {
	BaseURL string
	// BasePath defaults to /v0.
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set. The server
	// only honours it when started with --allow-actor-header.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Initiative represents the API initiative model (partial).
type Initiative struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// ArtifactVersion is a baseline or working copy. Data holds the artifact
// fields as sent by the server.
type ArtifactVersion struct {
	ID            int64           `json:"id"`
	ArtifactType  string          `json:"artifact_type"`
	ArtifactID    int64           `json:"artifact_id"`
	VersionNumber int             `json:"version_number"`
	InitiativeID  string          `json:"initiative_id,omitempty"`
	IsBaseline    bool            `json:"is_baseline"`
	State         string          `json:"state,omitempty"`
	Data          json.RawMessage `json:"artifact_data"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	CreatedBy     string          `json:"created_by"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
}

// Fields decodes the artifact data into a map.
func (v ArtifactVersion) Fields() (map[string]any, error) {
	var out map[string]any
	if len(v.Data) == 0 {
		return map[string]any{}, nil
	}
	err := json.Unmarshal(v.Data, &out)
	return out, err
}

// Lock represents an artifact lock.
type Lock struct {
	ID           int64  `json:"id"`
	ArtifactType string `json:"artifact_type"`
	ArtifactID   int64  `json:"artifact_id"`
	InitiativeID string `json:"initiative_id"`
	LockedBy     string `json:"locked_by"`
	LockExpiry   string `json:"lock_expiry"`
}

// Conflict represents a stored version conflict (partial).
type Conflict struct {
	ID                 int64          `json:"id"`
	InitiativeID       string         `json:"initiative_id"`
	ArtifactType       string         `json:"artifact_type"`
	ArtifactID         int64          `json:"artifact_id"`
	ConflictingFields  []string       `json:"conflicting_fields"`
	ResolutionStatus   string         `json:"resolution_status"`
	ResolutionStrategy string         `json:"resolution_strategy,omitempty"`
	ResolvedData       map[string]any `json:"resolved_data,omitempty"`
}

// BaselineResult reports a promotion.
type BaselineResult struct {
	InitiativeID string            `json:"initiative_id"`
	Baselines    []ArtifactVersion `json:"baselines"`
	LocksRemoved int64             `json:"locks_removed"`
}

// Event represents a log entry.
type Event struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts"`
	Type         string         `json:"type"`
	InitiativeID string         `json:"initiative_id"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     string         `json:"entity_id"`
	ActorID      string         `json:"actor_id"`
	Payload      map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsLockConflict reports whether err is a 409 lock conflict.
func IsLockConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "lock_conflict"
}

// CreateInitiative creates an initiative led by the caller.
func (c *Client) CreateInitiative(ctx context.Context, name, description string) (Initiative, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
	}
	var resp Initiative
	err := c.do(ctx, http.MethodPost, "initiatives", body, &resp)
	return resp, err
}

// Checkout checks an artifact out into the initiative.
func (c *Client) Checkout(ctx context.Context, initiativeID, artifactType string, artifactID int64) (ArtifactVersion, error) {
	body := map[string]any{
		"artifact_type": artifactType,
		"artifact_id":   artifactID,
	}
	var resp ArtifactVersion
	err := c.do(ctx, http.MethodPost, c.initiativePath(initiativeID, "checkout"), body, &resp)
	return resp, err
}

// Checkin saves the working copy's new fields.
func (c *Client) Checkin(ctx context.Context, initiativeID, artifactType string, artifactID int64, data map[string]any, reason string) (ArtifactVersion, error) {
	body := map[string]any{
		"artifact_type": artifactType,
		"artifact_id":   artifactID,
		"data":          data,
		"change_reason": reason,
	}
	var resp ArtifactVersion
	err := c.do(ctx, http.MethodPost, c.initiativePath(initiativeID, "checkin"), body, &resp)
	return resp, err
}

// DetectConflicts runs conflict detection for the initiative.
func (c *Client) DetectConflicts(ctx context.Context, initiativeID string) ([]Conflict, error) {
	var resp []Conflict
	err := c.do(ctx, http.MethodPost, c.initiativePath(initiativeID, "detect-conflicts"), nil, &resp)
	return resp, err
}

// ResolveConflict resolves a conflict; data is only used by manual_merge.
func (c *Client) ResolveConflict(ctx context.Context, conflictID int64, strategy string, data map[string]any, notes string) (Conflict, error) {
	body := map[string]any{
		"strategy": strategy,
		"notes":    notes,
	}
	if data != nil {
		body["resolved_data"] = data
	}
	var resp Conflict
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("conflicts/%d/resolve", conflictID), body, &resp)
	return resp, err
}

// Baseline promotes the initiative's working copies.
func (c *Client) Baseline(ctx context.Context, initiativeID, reason string) (BaselineResult, error) {
	var resp BaselineResult
	err := c.do(ctx, http.MethodPost, c.initiativePath(initiativeID, "baseline"), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Locks lists locks, optionally for one initiative.
func (c *Client) Locks(ctx context.Context, initiativeID string) ([]Lock, error) {
	endpoint := "locks"
	if initiativeID != "" {
		endpoint += "?initiative_id=" + url.QueryEscape(initiativeID)
	}
	var resp []Lock
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, initiativeID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if initiativeID != "" {
		q.Set("initiative_id", initiativeID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) initiativePath(initiativeID, p string) string {
	return fmt.Sprintf("initiatives/%s/%s", url.PathEscape(initiativeID), p)
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
