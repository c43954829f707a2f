package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dillipm021073/arc-studio-sub001/internal/config"
	"github.com/dillipm021073/arc-studio-sub001/internal/db"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/metrics"
	"github.com/dillipm021073/arc-studio-sub001/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := prometheus.NewRegistry()
	e := engine.New(conn, config.Default())
	e.Metrics = metrics.New(reg)
	seedServer(t, e)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowActorHeader: true},
		Gatherer: reg,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func seedServer(t *testing.T, e engine.Engine) {
	t.Helper()
	ctx := context.Background()
	provider, consumer := int64(10), int64(11)
	payloads := []domain.Payload{
		domain.Application{ID: 10, Name: "Billing", Version: "1.0", Status: "active"},
		domain.Application{ID: 11, Name: "CRM"},
		domain.Interface{ID: 20, IMLNumber: "IML-20", ProviderApplicationID: &provider, ConsumerApplicationID: &consumer},
	}
	for _, p := range payloads {
		if err := e.Repo.UpsertCatalog(ctx, nil, p); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for id, lead := range map[string]string{"INIT-1": "5", "INIT-2": "6"} {
		if err := e.Repo.InsertInitiative(ctx, nil, domain.Initiative{ID: id, Name: id, Status: domain.InitiativeActive, Priority: "medium", CreatedBy: lead, CreatedAt: now}); err != nil {
			t.Fatalf("seed initiative: %v", err)
		}
		if err := e.Repo.AddParticipant(ctx, nil, domain.Participant{InitiativeID: id, UserID: lead, Role: domain.RoleLead, AddedAt: now}); err != nil {
			t.Fatalf("seed participant: %v", err)
		}
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func actor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func bearer(t *testing.T, actorID string, roles ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, actorID, roles, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func TestCheckoutCheckinBaselineFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	ref := map[string]any{"artifact_type": "application", "artifact_id": 10}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/checkout", ref, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("checkout status %d: %s", res.StatusCode, string(data))
	}
	var wc domain.ArtifactVersion
	if err := json.Unmarshal(data, &wc); err != nil {
		t.Fatalf("unmarshal working copy: %v", err)
	}
	if wc.Initiative() != "INIT-1" || wc.IsBaseline {
		t.Fatalf("unexpected working copy %+v", wc)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-2/checkout", ref, actor("6"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected lock conflict, got %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "lock_conflict" || envelope.Error.Details["locked_by"] != "5" || envelope.Error.Details["initiative_id"] != "INIT-1" {
		t.Fatalf("unexpected conflict envelope %+v", envelope.Error)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/checkin", map[string]any{
		"artifact_type": "application",
		"artifact_id":   10,
		"data":          map[string]any{"id": 10, "name": "Renamed", "version": "1.0", "status": "active"},
		"change_reason": "rename",
	}, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("checkin status %d: %s", res.StatusCode, string(data))
	}
	var checkedIn struct {
		ChangedFields []string `json:"changed_fields"`
		State         string   `json:"state"`
	}
	if err := json.Unmarshal(data, &checkedIn); err != nil {
		t.Fatalf("unmarshal checkin: %v", err)
	}
	if len(checkedIn.ChangedFields) != 1 || checkedIn.ChangedFields[0] != "name" {
		t.Fatalf("expected name changed, got %v", checkedIn.ChangedFields)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/baseline", map[string]any{"reason": "ship"}, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("baseline status %d: %s", res.StatusCode, string(data))
	}
	var result engine.BaselineResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal baseline: %v", err)
	}
	if len(result.Baselines) != 1 || !result.Baselines[0].IsBaseline {
		t.Fatalf("expected one new baseline, got %+v", result)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/locks", nil, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("locks status %d: %s", res.StatusCode, string(data))
	}
	var locks []domain.ArtifactLock
	if err := json.Unmarshal(data, &locks); err != nil {
		t.Fatalf("unmarshal locks: %v", err)
	}
	if len(locks) != 0 {
		t.Fatalf("expected no locks after baseline, got %+v", locks)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/artifacts/application/10/versions", nil, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("versions status %d: %s", res.StatusCode, string(data))
	}
	var versions ArtifactVersionsResponse
	if err := json.Unmarshal(data, &versions); err != nil {
		t.Fatalf("unmarshal versions: %v", err)
	}
	if len(versions.History) == 0 {
		t.Fatalf("expected baseline history, got %+v", versions)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/initiatives", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/initiatives", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/initiatives", nil, bearer(t, "5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list with token status %d: %s", res.StatusCode, string(data))
	}
	var items []domain.Initiative
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal initiatives: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 initiatives, got %d", len(items))
	}
}

func TestForceRequiresAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/cancel", nil, actor("9"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/cancel?force=true", nil, actor("9"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin force, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/cancel?force=true", nil, bearer(t, "9", auth.RoleAdmin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin force cancel status %d: %s", res.StatusCode, string(data))
	}
	var in domain.Initiative
	if err := json.Unmarshal(data, &in); err != nil {
		t.Fatalf("unmarshal initiative: %v", err)
	}
	if in.Status != domain.InitiativeCancelled {
		t.Fatalf("expected cancelled, got %s", in.Status)
	}
}

func TestCreateInitiativeAndNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives", map[string]any{"name": "Q3 billing"}, actor("5"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Initiative
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal initiative: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/initiatives/"+created.ID, nil, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var detail InitiativeDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if len(detail.Participants) != 1 || detail.Participants[0].Role != domain.RoleLead {
		t.Fatalf("expected creator as lead, got %+v", detail.Participants)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives", map[string]any{"name": " "}, actor("5"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/initiatives/INIT-404", nil, actor("5"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/artifacts/widget/1/versions", nil, actor("5"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	for _, id := range []int{10, 11} {
		ref := map[string]any{"artifact_type": "application", "artifact_id": id}
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/checkout", ref, actor("5"))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("checkout %d status %d: %s", id, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?initiative_id=INIT-1&type=artifact.checked_out&limit=1", nil, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor == "" || page.Items[0].EntityID != "11" {
		t.Fatalf("unexpected first page %+v", page)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?initiative_id=INIT-1&type=artifact.checked_out&limit=1&cursor="+page.NextCursor, nil, actor("5"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	var next paginatedEvents
	if err := json.Unmarshal(data, &next); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(next.Items) != 1 || next.NextCursor != "" || next.Items[0].EntityID != "10" {
		t.Fatalf("unexpected second page %+v", next)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	ref := map[string]any{"artifact_type": "application", "artifact_id": 10}
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/initiatives/INIT-1/checkout", ref, actor("5")); res.StatusCode != http.StatusOK {
		t.Fatalf("checkout status %d: %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d: %s", res.StatusCode, string(data))
	}
	if !bytes.Contains(data, []byte("arcstudio_")) {
		t.Fatalf("expected arcstudio metrics, got %s", string(data))
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	const workers = 8
	bodies := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/openapi.json", nil)
			if err != nil {
				errs[i] = err
				return
			}
			req.Header.Set("X-Actor-Id", "5")
			res, err := client.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				errs[i] = fmt.Errorf("status %d", res.StatusCode)
				return
			}
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("request %d served a different document", i)
		}
	}
	var doc struct {
		Paths      map[string]any `json:"paths"`
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
	}
	if err := json.Unmarshal(bodies[0], &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	if _, ok := doc.Paths["/v0/initiatives/{id}/checkout"]; !ok {
		t.Fatalf("checkout route missing from openapi paths")
	}
	if _, ok := doc.Components.SecuritySchemes["bearerAuth"]; !ok {
		t.Fatalf("bearer security scheme missing")
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	ctx := context.Background()
	d := newWebhookDispatcher(srv.Engine.Repo, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{"artifact.checked_out"},
		Secret: "s3cret",
	}}, nil)
	d.primeCursors(ctx)

	if _, err := srv.Engine.Checkout(ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := srv.Engine.CancelCheckout(ctx, domain.ArtifactApplication, 10, "INIT-1", "5", false); err != nil {
		t.Fatalf("cancel checkout: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one delivery, got %d", len(received))
	}
	if received[0].Type != "artifact.checked_out" || received[0].InitiativeID != "INIT-1" || received[0].EntityID != "10" {
		t.Fatalf("unexpected delivery %+v", received[0])
	}
	if headers[0].Get("X-Arcstudio-Secret") != "s3cret" || headers[0].Get("X-Arcstudio-Delivery") != fmt.Sprint(received[0].ID) {
		t.Fatalf("unexpected headers %v", headers[0])
	}
}

func TestEventFilterPatterns(t *testing.T) {
	cases := []struct {
		events []string
		evt    string
		want   bool
	}{
		{nil, "artifact.checked_out", true},
		{[]string{"*"}, "lock.swept", true},
		{[]string{"artifact.*"}, "artifact.checked_in", true},
		{[]string{"artifact.*"}, "artifact", false},
		{[]string{"artifact.*"}, "initiative.completed", false},
		{[]string{"conflict.detected", "lock.*"}, "lock.released", true},
		{[]string{"conflict.detected"}, "conflict.resolved", false},
		{[]string{"bad[pattern"}, "bad[pattern", true},
	}
	for _, tc := range cases {
		if got := newEventFilter(tc.events).match(tc.evt); got != tc.want {
			t.Fatalf("filter %v match %q = %v, want %v", tc.events, tc.evt, got, tc.want)
		}
	}
}
