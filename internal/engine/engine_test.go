package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dillipm021073/arc-studio-sub001/internal/config"
	"github.com/dillipm021073/arc-studio-sub001/internal/db"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/migrate"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func (env testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return clock }
	env := testEnv{Engine: eng, Ctx: context.Background(), clock: &clock}
	seed(t, env)
	return env
}

func ptr(v int64) *int64 { return &v }

// seed loads two applications joined by one interface and two active
// initiatives led by users 5 and 6.
func seed(t *testing.T, env testEnv) {
	t.Helper()
	r := env.Engine.Repo
	payloads := []domain.Payload{
		domain.Application{ID: 10, Name: "Billing", Version: "1.0", Description: "Initial", Status: "active"},
		domain.Application{ID: 11, Name: "CRM"},
		domain.Interface{ID: 20, IMLNumber: "IML-20", ProviderApplicationID: ptr(10), ConsumerApplicationID: ptr(11)},
	}
	for _, p := range payloads {
		if err := r.UpsertCatalog(env.Ctx, nil, p); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}
	leads := map[string]string{"INIT-1": "5", "INIT-2": "6"}
	for id, lead := range leads {
		addInitiative(t, env, id, lead)
	}
}

func addInitiative(t *testing.T, env testEnv, id, lead string) {
	t.Helper()
	r := env.Engine.Repo
	now := env.clock.Format(time.RFC3339)
	if err := r.InsertInitiative(env.Ctx, nil, domain.Initiative{ID: id, Name: id, Status: domain.InitiativeActive, Priority: "medium", CreatedBy: lead, CreatedAt: now}); err != nil {
		t.Fatalf("seed initiative: %v", err)
	}
	if err := r.AddParticipant(env.Ctx, nil, domain.Participant{InitiativeID: id, UserID: lead, Role: domain.RoleLead, AddedAt: now}); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
}

// edit returns the working copy's fields with changes applied.
func edit(t *testing.T, v domain.ArtifactVersion, changes map[string]any) map[string]any {
	t.Helper()
	fields, err := domain.Fields(v.Data)
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	for k, val := range changes {
		fields[k] = val
	}
	return fields
}

func checkoutAndCheckin(t *testing.T, env testEnv, initiativeID, user string, changes map[string]any) domain.ArtifactVersion {
	t.Helper()
	wc, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, initiativeID, user)
	if err != nil {
		t.Fatalf("checkout %s: %v", initiativeID, err)
	}
	v, err := env.Engine.Checkin(env.Ctx, engine.CheckinOptions{
		ArtifactType: domain.ArtifactApplication,
		ArtifactID:   10,
		InitiativeID: initiativeID,
		ActorID:      user,
		Data:         edit(t, wc, changes),
	})
	if err != nil {
		t.Fatalf("checkin %s: %v", initiativeID, err)
	}
	return v
}

func TestCreateInitiativeMakesCreatorLead(t *testing.T) {
	env := newTestEnv(t)
	in, err := env.Engine.CreateInitiative(env.Ctx, engine.InitiativeCreateOptions{Name: "Q3 billing", ActorID: "5"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(in.ID, "INIT-20240101-") || len(in.ID) != len("INIT-20240101-")+8 {
		t.Fatalf("unexpected id %s", in.ID)
	}
	if in.Status != domain.InitiativeActive || in.Priority != "medium" {
		t.Fatalf("unexpected initiative %+v", in)
	}
	parts, err := env.Engine.ListParticipants(env.Ctx, in.ID)
	if err != nil || len(parts) != 1 || parts[0].Role != domain.RoleLead || parts[0].UserID != "5" {
		t.Fatalf("expected creator as lead, got %+v %v", parts, err)
	}
	if _, err := env.Engine.AddParticipant(env.Ctx, in.ID, "7", domain.RoleDeveloper, "8", false); !errors.As(err, &auth.ForbiddenError{}) {
		t.Fatalf("expected forbidden for non-participant, got %v", err)
	}
	if _, err := env.Engine.AddParticipant(env.Ctx, in.ID, "7", domain.RoleDeveloper, "5", false); err != nil {
		t.Fatalf("lead adds participant: %v", err)
	}
	if err := env.Engine.TransferOwnership(env.Ctx, in.ID, "7", "5", false); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	role, _ := env.Engine.Repo.ParticipantRole(env.Ctx, nil, in.ID, "5")
	if role != domain.RoleDeveloper {
		t.Fatalf("old owner role %q", role)
	}
	role, _ = env.Engine.Repo.ParticipantRole(env.Ctx, nil, in.ID, "7")
	if role != domain.RoleLead {
		t.Fatalf("new owner role %q", role)
	}
}

func TestCheckoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	second, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5")
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same version, got %d and %d", first.ID, second.ID)
	}
	if first.VersionNumber != 2 || first.State != domain.StateCheckedOut || first.ParentVersionID == nil {
		t.Fatalf("unexpected working copy %+v", first)
	}
	locks, err := env.Engine.ListLocks(env.Ctx, "")
	if err != nil || len(locks) != 1 {
		t.Fatalf("expected one lock, got %d (%v)", len(locks), err)
	}
	if locks[0].LockExpiry != "2024-01-02T00:00:00Z" {
		t.Fatalf("expected 24h ttl, got %s", locks[0].LockExpiry)
	}
	n, err := env.Engine.Repo.CountBaselines(env.Ctx, domain.ArtifactApplication, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected one baseline, got %d (%v)", n, err)
	}
}

func TestLockExclusivity(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	_, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-2", "6")
	var lockErr engine.LockConflictError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected lock conflict, got %v", err)
	}
	if lockErr.LockedBy != "5" || lockErr.InitiativeID != "INIT-1" || lockErr.ExpiresAt == "" {
		t.Fatalf("unexpected holder %+v", lockErr)
	}
	copies, _ := env.Engine.ListInitiativeVersions(env.Ctx, "INIT-2")
	if len(copies) != 0 {
		t.Fatalf("failed checkout left %d working copies", len(copies))
	}

	env.advance(25 * time.Hour)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-2", "6"); err != nil {
		t.Fatalf("checkout after expiry: %v", err)
	}
	valid, err := env.Engine.IsLockValid(env.Ctx, domain.ArtifactApplication, 10)
	if err != nil || !valid {
		t.Fatalf("expected valid lock, got %v %v", valid, err)
	}
}

func TestConcurrentCheckoutSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	type attempt struct {
		initiative string
		user       string
	}
	attempts := []attempt{{"INIT-1", "5"}, {"INIT-2", "6"}}
	errs := make([]error, len(attempts))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			<-start
			_, errs[i] = env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, a.initiative, a.user)
		}(i, a)
	}
	close(start)
	wg.Wait()

	winners := 0
	winner := ""
	for i, err := range errs {
		var lockErr engine.LockConflictError
		switch {
		case err == nil:
			winners++
			winner = attempts[i].initiative
		case errors.As(err, &lockErr):
		default:
			t.Fatalf("checkout %s: unexpected error %v", attempts[i].initiative, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one checkout to win, got %d (%v)", winners, errs)
	}
	locks, err := env.Engine.ListLocks(env.Ctx, "")
	if err != nil {
		t.Fatalf("list locks: %v", err)
	}
	if len(locks) != 1 || locks[0].InitiativeID != winner {
		t.Fatalf("expected one lock held by %s, got %+v", winner, locks)
	}
	for _, a := range attempts {
		copies, err := env.Engine.ListInitiativeVersions(env.Ctx, a.initiative)
		if err != nil {
			t.Fatalf("list versions: %v", err)
		}
		want := 0
		if a.initiative == winner {
			want = 1
		}
		if len(copies) != want {
			t.Fatalf("%s has %d working copies, want %d", a.initiative, len(copies), want)
		}
	}
}

func TestRecheckoutBlockedByForeignLock(t *testing.T) {
	env := newTestEnv(t)
	checkoutAndCheckin(t, env, "INIT-1", "5", map[string]any{"name": "Renamed"})
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-2", "6"); err != nil {
		t.Fatalf("checkout INIT-2: %v", err)
	}
	_, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5")
	var lockErr engine.LockConflictError
	if !errors.As(err, &lockErr) || lockErr.InitiativeID != "INIT-2" {
		t.Fatalf("expected lock conflict held by INIT-2, got %v", err)
	}
	copies, _ := env.Engine.ListInitiativeVersions(env.Ctx, "INIT-1")
	if len(copies) != 1 || copies[0].State != domain.StateCheckedIn {
		t.Fatalf("INIT-1 working copy should stay checked in, got %+v", copies)
	}
}

func TestCheckoutRequiresActiveInitiative(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Repo.UpdateInitiativeStatus(env.Ctx, nil, "INIT-1", domain.InitiativeCancelled, "5", "2024-01-01T00:00:00Z", ""); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5")
	var pre engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	_, err = env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 99, "INIT-2", "6")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown artifact, got %v", err)
	}
}

func TestCheckinRecordsChangedFields(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Checkin(env.Ctx, engine.CheckinOptions{ArtifactType: domain.ArtifactApplication, ArtifactID: 10, InitiativeID: "INIT-1", ActorID: "5", Data: map[string]any{"name": "x"}})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found without checkout, got %v", err)
	}

	v := checkoutAndCheckin(t, env, "INIT-1", "5", map[string]any{"status": "inactive", "team": "Payments"})
	if v.VersionNumber != 3 || v.State != domain.StateCheckedIn {
		t.Fatalf("unexpected version %+v", v)
	}
	if strings.Join(v.ChangedFields, ",") != "status,team" {
		t.Fatalf("unexpected changed fields %v", v.ChangedFields)
	}
	app, ok := v.Data.(domain.Application)
	if !ok || app.Team != "Payments" || app.ID != 10 {
		t.Fatalf("unexpected payload %#v", v.Data)
	}
	valid, _ := env.Engine.IsLockValid(env.Ctx, domain.ArtifactApplication, 10)
	if valid {
		t.Fatalf("checkin should release the lock")
	}
}

func TestCheckinBlockedByForeignLock(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatal(err)
	}
	env.advance(25 * time.Hour)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-2", "6"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Checkin(env.Ctx, engine.CheckinOptions{ArtifactType: domain.ArtifactApplication, ArtifactID: 10, InitiativeID: "INIT-1", ActorID: "5", Data: map[string]any{"name": "Late"}})
	var pre engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestEndToEndBaseline(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	_, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-2", "6")
	var lockErr engine.LockConflictError
	if !errors.As(err, &lockErr) || lockErr.LockedBy != "5" {
		t.Fatalf("expected lock conflict held by 5, got %v", err)
	}
	before, err := env.Engine.GetBaseline(env.Ctx, domain.ArtifactApplication, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Checkin(env.Ctx, engine.CheckinOptions{
		ArtifactType: domain.ArtifactApplication,
		ArtifactID:   10,
		InitiativeID: "INIT-1",
		ActorID:      "5",
		Data:         map[string]any{"name": "Renamed"},
		Reason:       "rename",
	}); err != nil {
		t.Fatalf("checkin: %v", err)
	}
	res, err := env.Engine.BaselineInitiative(env.Ctx, "INIT-1", "5", "", false)
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	if len(res.Baselines) != 1 {
		t.Fatalf("expected one baseline, got %d", len(res.Baselines))
	}
	after, err := env.Engine.GetBaseline(env.Ctx, domain.ArtifactApplication, 10)
	if err != nil {
		t.Fatal(err)
	}
	if after.VersionNumber != before.VersionNumber+1 {
		t.Fatalf("baseline version %d -> %d", before.VersionNumber, after.VersionNumber)
	}
	if after.Data.DisplayName() != "Renamed" {
		t.Fatalf("baseline payload %#v", after.Data)
	}
	n, _ := env.Engine.Repo.CountBaselines(env.Ctx, domain.ArtifactApplication, 10)
	if n != 1 {
		t.Fatalf("expected a single baseline, got %d", n)
	}
	locks, _ := env.Engine.ListLocks(env.Ctx, "INIT-1")
	if len(locks) != 0 {
		t.Fatalf("expected no locks for INIT-1, got %d", len(locks))
	}
	in, _ := env.Engine.GetInitiative(env.Ctx, "INIT-1")
	if in.Status != domain.InitiativeCompleted || in.ActualCompletionDate == "" {
		t.Fatalf("unexpected initiative %+v", in)
	}
	catalog, err := env.Engine.Repo.GetCatalogPayload(env.Ctx, nil, domain.ArtifactApplication, 10)
	if err != nil || catalog.DisplayName() != "Renamed" {
		t.Fatalf("catalog not written back: %v %v", catalog, err)
	}
	history, err := env.Engine.BaselineHistory(env.Ctx, domain.ArtifactApplication, 10)
	if err != nil || len(history) != 1 || history[0].ToVersionID != after.ID || history[0].InitiativeID != "INIT-1" {
		t.Fatalf("unexpected history %+v %v", history, err)
	}
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-2", "6"); err != nil {
		t.Fatalf("checkout after baseline: %v", err)
	}
}

func TestBaselineBlockedByForeignLock(t *testing.T) {
	env := newTestEnv(t)
	checkoutAndCheckin(t, env, "INIT-1", "5", map[string]any{"name": "Renamed"})
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-2", "6"); err != nil {
		t.Fatalf("checkout INIT-2: %v", err)
	}
	_, err := env.Engine.BaselineInitiative(env.Ctx, "INIT-1", "5", "ship", false)
	var pre engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if !strings.Contains(err.Error(), "INIT-2") {
		t.Fatalf("error should name the holding initiative: %v", err)
	}
	base, err := env.Engine.GetBaseline(env.Ctx, domain.ArtifactApplication, 10)
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	if base.VersionNumber != 1 {
		t.Fatalf("blocked promotion changed the baseline to version %d", base.VersionNumber)
	}
	in, err := env.Engine.GetInitiative(env.Ctx, "INIT-1")
	if err != nil || in.Status != domain.InitiativeActive {
		t.Fatalf("initiative should stay active, got %+v %v", in, err)
	}
}

func TestBaselineBlockedByPendingConflict(t *testing.T) {
	env := newTestEnv(t)
	checkoutAndCheckin(t, env, "INIT-1", "5", map[string]any{"version": "1.2"})
	checkoutAndCheckin(t, env, "INIT-2", "6", map[string]any{"version": "1.1"})
	if _, err := env.Engine.BaselineInitiative(env.Ctx, "INIT-2", "6", "", false); err != nil {
		t.Fatalf("baseline INIT-2: %v", err)
	}

	conflicts, err := env.Engine.DetectConflicts(env.Ctx, "INIT-1", "5")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if strings.Join(c.ConflictingFields, ",") != "version" || c.ResolutionStatus != domain.ConflictPending {
		t.Fatalf("unexpected conflict %+v", c)
	}
	f := c.Details.Fields[0]
	if f.Severity != "high" || f.SuggestedResolution != "initiative" || f.AutoResolvable {
		t.Fatalf("unexpected field conflict %+v", f)
	}

	_, err = env.Engine.BaselineInitiative(env.Ctx, "INIT-1", "5", "", false)
	var pre engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if _, err := env.Engine.AutoResolveConflict(env.Ctx, c.ID, "5"); !errors.Is(err, engine.ErrNotAutoResolvable) {
		t.Fatalf("expected not auto-resolvable, got %v", err)
	}
	resolved, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: c.ID, Strategy: engine.StrategyKeepInitiative, ActorID: "5"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResolutionStatus != domain.ConflictResolved || resolved.ResolvedData["version"] != "1.2" {
		t.Fatalf("unexpected resolution %+v", resolved)
	}

	if _, err := env.Engine.BaselineInitiative(env.Ctx, "INIT-1", "5", "", false); err != nil {
		t.Fatalf("baseline INIT-1: %v", err)
	}
	base, _ := env.Engine.GetBaseline(env.Ctx, domain.ArtifactApplication, 10)
	app := base.Data.(domain.Application)
	if base.VersionNumber != 3 || app.Version != "1.2" {
		t.Fatalf("unexpected baseline v%d %+v", base.VersionNumber, app)
	}
}

func TestAutoResolveSubstring(t *testing.T) {
	env := newTestEnv(t)
	checkoutAndCheckin(t, env, "INIT-1", "5", map[string]any{"description": "full description"})
	checkoutAndCheckin(t, env, "INIT-2", "6", map[string]any{"description": "A full description"})
	if _, err := env.Engine.BaselineInitiative(env.Ctx, "INIT-2", "6", "", false); err != nil {
		t.Fatalf("baseline INIT-2: %v", err)
	}
	conflicts, err := env.Engine.DetectConflicts(env.Ctx, "INIT-1", "5")
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d (%v)", len(conflicts), err)
	}
	c := conflicts[0]
	if !c.Details.Fields[0].AutoResolvable || c.Details.SuggestedStrategy != "auto" {
		t.Fatalf("expected auto-resolvable conflict, got %+v", c.Details)
	}
	analysis, err := env.Engine.GetConflictAnalysis(env.Ctx, c.ID)
	if err != nil || !analysis.AutoResolvable || analysis.Preview["description"] != "A full description" {
		t.Fatalf("unexpected analysis %+v %v", analysis, err)
	}
	resolved, err := env.Engine.AutoResolveConflict(env.Ctx, c.ID, "5")
	if err != nil {
		t.Fatalf("auto resolve: %v", err)
	}
	if resolved.ResolutionStrategy != engine.StrategyAutoMerge || resolved.ResolvedData["description"] != "A full description" {
		t.Fatalf("unexpected resolution %+v", resolved)
	}
	wc, err := env.Engine.Repo.GetWorkingCopy(env.Ctx, nil, domain.ArtifactApplication, 10, "INIT-1")
	if err != nil || wc.Data.(domain.Application).Description != "A full description" {
		t.Fatalf("working copy not updated: %v", err)
	}
	if _, err := env.Engine.ResolveConflict(env.Ctx, engine.ResolveOptions{ConflictID: c.ID, Strategy: "coin_flip", ActorID: "5"}); err == nil {
		t.Fatalf("expected invalid strategy error")
	}
}

func TestCancelCheckout(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 11, "INIT-1", "5"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CancelCheckout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "7", false)
	if !errors.As(err, &auth.ForbiddenError{}) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	n, err := env.Engine.CancelCheckout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "7", true)
	if err != nil || n != 1 {
		t.Fatalf("forced cancel: %d %v", n, err)
	}
	n, err = env.Engine.CancelCheckout(env.Ctx, domain.ArtifactApplication, 0, "INIT-1", "5", false)
	if err != nil || n != 1 {
		t.Fatalf("cancel all: %d %v", n, err)
	}
	locks, _ := env.Engine.ListLocks(env.Ctx, "INIT-1")
	copies, _ := env.Engine.ListInitiativeVersions(env.Ctx, "INIT-1")
	if len(locks) != 0 || len(copies) != 0 {
		t.Fatalf("expected nothing left, got %d locks %d copies", len(locks), len(copies))
	}
	if _, err := env.Engine.CancelCheckout(env.Ctx, domain.ArtifactApplication, 0, "INIT-1", "5", false); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReleaseLockKeepsWorkingCopy(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatal(err)
	}
	locks, _ := env.Engine.ListLocks(env.Ctx, "INIT-1")
	if _, err := env.Engine.ReleaseLock(env.Ctx, locks[0].ID, "6", false); !errors.As(err, &auth.ForbiddenError{}) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := env.Engine.ReleaseLock(env.Ctx, locks[0].ID, "5", false); err != nil {
		t.Fatalf("release: %v", err)
	}
	orphans, err := env.Engine.ReconcileOrphans(env.Ctx, false, "5")
	if err != nil || len(orphans) != 1 {
		t.Fatalf("expected one orphan, got %d (%v)", len(orphans), err)
	}
	removed, err := env.Engine.ReconcileOrphans(env.Ctx, true, "5")
	if err != nil || len(removed) != 1 {
		t.Fatalf("expected one removed orphan, got %d (%v)", len(removed), err)
	}
	copies, _ := env.Engine.ListInitiativeVersions(env.Ctx, "INIT-1")
	if len(copies) != 0 {
		t.Fatalf("orphan not removed")
	}
}

func TestSweepRemovesExpiredAndInactiveLocks(t *testing.T) {
	env := newTestEnv(t)
	addInitiative(t, env, "INIT-3", "7")
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatal(err)
	}
	env.advance(25 * time.Hour)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 11, "INIT-3", "7"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactInterface, 20, "INIT-2", "6"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.UpdateInitiativeStatus(env.Ctx, nil, "INIT-3", domain.InitiativeCompleted, "7", "2024-01-02T01:00:00Z", "2024-01-02T01:00:00Z"); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.SweepLocks(env.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Expired) != 1 || res.Expired[0].ArtifactID != 10 {
		t.Fatalf("unexpected expired %+v", res.Expired)
	}
	if len(res.Inactive) != 1 || res.Inactive[0].InitiativeID != "INIT-3" {
		t.Fatalf("unexpected inactive %+v", res.Inactive)
	}
	if len(res.Orphans) != 2 {
		t.Fatalf("expected two orphaned working copies, got %d", len(res.Orphans))
	}
	locks, _ := env.Engine.ListLocks(env.Ctx, "")
	if len(locks) != 1 || locks[0].InitiativeID != "INIT-2" {
		t.Fatalf("expected only the active lock to remain, got %+v", locks)
	}
}

func TestSweeperStartStop(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatal(err)
	}
	env.advance(48 * time.Hour)
	s := engine.NewSweeper(env.Engine, time.Hour, nil)
	s.Start(env.Ctx)
	s.Start(env.Ctx)
	deadline := time.Now().Add(5 * time.Second)
	for {
		locks, err := env.Engine.ListLocks(env.Ctx, "")
		if err == nil && len(locks) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not run: %d locks left (%v)", len(locks), err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()
	s.Stop()
}

func TestCancelInitiativeDiscardsWork(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Checkout(env.Ctx, domain.ArtifactApplication, 10, "INIT-1", "5"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CancelInitiative(env.Ctx, "INIT-1", "6", false); !errors.As(err, &auth.ForbiddenError{}) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	in, err := env.Engine.CancelInitiative(env.Ctx, "INIT-1", "5", false)
	if err != nil || in.Status != domain.InitiativeCancelled {
		t.Fatalf("cancel: %+v %v", in, err)
	}
	copies, _ := env.Engine.ListInitiativeVersions(env.Ctx, "INIT-1")
	locks, _ := env.Engine.ListLocks(env.Ctx, "INIT-1")
	if len(copies) != 0 || len(locks) != 0 {
		t.Fatalf("expected discarded work, got %d copies %d locks", len(copies), len(locks))
	}
}

func TestBulkCheckout(t *testing.T) {
	env := newTestEnv(t)
	r := env.Engine.Repo
	if err := r.UpsertChangeRequest(env.Ctx, nil, domain.ChangeRequest{ID: 100, Number: "CR-100", Title: "CRM upgrade", Status: "approved", InitiativeID: "INIT-2"}); err != nil {
		t.Fatal(err)
	}
	if err := r.LinkChangeRequest(env.Ctx, nil, 100, domain.ArtifactApplication, 11); err != nil {
		t.Fatal(err)
	}

	a, err := env.Engine.AnalyzeCheckoutImpact(env.Ctx, domain.ArtifactApplication, 10, "INIT-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.RequiredCheckouts.Total() != 2 || len(a.CrossInitiativeImpacts) != 1 {
		t.Fatalf("unexpected analysis %+v", a)
	}

	res, err := env.Engine.PerformBulkCheckout(env.Ctx, a, "INIT-1", "5", false)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.Successful != 1 || len(res.Failed) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Failed[0].Artifact != "application: CRM" || !strings.HasPrefix(res.Failed[0].Error, "pending approval") {
		t.Fatalf("unexpected failure %+v", res.Failed[0])
	}

	res, err = env.Engine.PerformBulkCheckout(env.Ctx, a, "INIT-1", "5", true)
	if err != nil || res.Successful != 2 || len(res.Failed) != 0 {
		t.Fatalf("auto-approved bulk: %+v %v", res, err)
	}
	locks, _ := env.Engine.ListLocks(env.Ctx, "INIT-1")
	if len(locks) != 2 {
		t.Fatalf("expected two locks, got %d", len(locks))
	}
}

func TestDependencyGraphIsCachedPerRevision(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateDependency(env.Ctx, engine.DependencyOptions{
		FromType: domain.ArtifactApplication, FromID: 11,
		ToType: domain.ArtifactApplication, ToID: 10,
		Type: "requires", ActorID: "5",
	}); err != nil {
		t.Fatalf("create dependency: %v", err)
	}
	if _, err := env.Engine.CreateDependency(env.Ctx, engine.DependencyOptions{
		FromType: domain.ArtifactApplication, FromID: 10, ToType: domain.ArtifactApplication, ToID: 10, Type: "requires", ActorID: "5",
	}); err == nil {
		t.Fatalf("expected self dependency to be rejected")
	}

	g, err := env.Engine.BuildDependencyGraph(env.Ctx, domain.ArtifactApplication, 10, 0)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(g.Nodes) != 3 || g.Root != "application-10" {
		t.Fatalf("unexpected graph %+v", g)
	}
	if _, err := env.Engine.BuildDependencyGraph(env.Ctx, domain.ArtifactApplication, 10, 0); err != nil {
		t.Fatal(err)
	}
	if env.Engine.Graphs.Len() != 1 {
		t.Fatalf("expected one cached graph, got %d", env.Engine.Graphs.Len())
	}
	report, err := env.Engine.GetImpactReport(env.Ctx, domain.ArtifactApplication, 10, "")
	if err != nil || report.TotalImpacts != 2 {
		t.Fatalf("unexpected report %+v %v", report, err)
	}
}

func TestImportCatalog(t *testing.T) {
	env := newTestEnv(t)
	c, err := engine.ParseCatalog([]byte(`applications:
  - id: 30
    name: Ledger
interfaces:
  - id: 40
    iml_number: IML-40
    provider_application_id: 30
    consumer_application_id: 10
change_requests:
  - id: 7
    cr_number: CR-7
    title: Ledger split
    status: submitted
    initiative_id: INIT-2
    applications: [30]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res, err := env.Engine.ImportCatalog(env.Ctx, c, "5")
	if err != nil || res.Artifacts != 2 || res.ChangeRequests != 1 {
		t.Fatalf("import: %+v %v", res, err)
	}
	name, err := env.Engine.Repo.ArtifactName(env.Ctx, domain.ArtifactInterface, 40)
	if err != nil || name != "IML-40" {
		t.Fatalf("interface not imported: %q %v", name, err)
	}
	if _, err := engine.ParseCatalog([]byte("applicatons: []\n")); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
