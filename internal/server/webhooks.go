package server

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

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"

	"github.com/dillipm021073/arc-studio-sub001/internal/config"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/logging"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

type webhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.WebhookConfig
	client   *http.Client
	interval time.Duration
	logger   logrus.FieldLogger
	mu       sync.Mutex
	cursors  map[int]int64
}

func newWebhookDispatcher(r repo.Repo, hooks []config.WebhookConfig, logger logrus.FieldLogger) *webhookDispatcher {
	return &webhookDispatcher{
		repo:     r,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		interval: defaultWebhookInterval,
		logger:   logging.OrDiscard(logger).WithField("component", "webhooks"),
		cursors:  make(map[int]int64),
	}
}

// StartWebhooks delivers new events to the configured webhooks until ctx is
// done. Delivery starts from the events appended after the call.
func StartWebhooks(ctx context.Context, r repo.Repo, hooks []config.WebhookConfig, logger logrus.FieldLogger) {
	if len(hooks) == 0 {
		return
	}
	d := newWebhookDispatcher(r, hooks, logger)
	d.primeCursors(ctx)
	go d.run(ctx)
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) primeCursors(ctx context.Context) {
	for i := range d.webhooks {
		d.cursorFor(ctx, i)
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	events, err := d.repo.EventsAfter(ctx, defaultWebhookBatch, cursor, "")
	if err != nil {
		if ctx.Err() == nil {
			d.logger.WithError(err).Warn("fetch events failed")
		}
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"url":      hook.URL,
				"event_id": evt.ID,
			}).Warn("webhook delivery failed")
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.repo.LatestEventID(ctx, "")
	if err != nil {
		d.logger.WithError(err).Warn("init cursor failed")
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID           int64           `json:"id"`
	Type         string          `json:"type"`
	InitiativeID string          `json:"initiative_id,omitempty"`
	EntityKind   string          `json:"entity_kind"`
	EntityID     string          `json:"entity_id,omitempty"`
	ActorID      string          `json:"actor_id"`
	TS           string          `json:"ts"`
	Payload      json.RawMessage `json:"payload"`
	PayloadRaw   string          `json:"payload_raw,omitempty"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	body := webhookEvent{
		ID:           evt.ID,
		Type:         evt.Type,
		InitiativeID: evt.InitiativeID,
		EntityKind:   evt.EntityKind,
		EntityID:     evt.EntityID,
		ActorID:      evt.ActorID,
		TS:           evt.TS,
		Payload:      payload,
		PayloadRaw:   raw,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Arcstudio-Event", evt.Type)
	req.Header.Set("X-Arcstudio-Delivery", fmt.Sprintf("%d", evt.ID))
	if evt.InitiativeID != "" {
		req.Header.Set("X-Arcstudio-Initiative", evt.InitiativeID)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Arcstudio-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

// eventFilter matches event types against a hook's patterns. Patterns use
// glob syntax with '.' as separator, so "artifact.*" matches
// "artifact.checked_out" but not "artifact".
type eventFilter struct {
	all   bool
	globs []glob.Glob
}

func newEventFilter(events []string) eventFilter {
	var globs []glob.Glob
	for _, evt := range events {
		pattern := strings.TrimSpace(evt)
		if pattern == "" {
			continue
		}
		if pattern == "*" {
			return eventFilter{all: true}
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			g = glob.MustCompile(glob.QuoteMeta(pattern), '.')
		}
		globs = append(globs, g)
	}
	if len(globs) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{globs: globs}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	for _, g := range f.globs {
		if g.Match(evt) {
			return true
		}
	}
	return false
}
