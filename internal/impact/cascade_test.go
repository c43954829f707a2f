package impact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillipm021073/arc-studio-sub001/internal/db"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/migrate"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

func ptr(v int64) *int64 { return &v }

func newCatalog(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	r := repo.Repo{DB: conn}
	ctx := context.Background()
	payloads := []domain.Payload{
		domain.Application{ID: 1, Name: "Billing"},
		domain.Application{ID: 2, Name: "CRM"},
		domain.Application{ID: 3, Name: "Ledger"},
		domain.Interface{ID: 10, IMLNumber: "IML-10", ProviderApplicationID: ptr(1), ConsumerApplicationID: ptr(2)},
		domain.Interface{ID: 11, IMLNumber: "IML-11", ProviderApplicationID: ptr(3), ConsumerApplicationID: ptr(1)},
		domain.BusinessProcess{ID: 20, Name: "Order to Cash", InterfaceIDs: []int64{10}},
		domain.InternalActivity{ID: 30, Name: "Rate", ApplicationID: ptr(1)},
		domain.TechnicalProcess{ID: 40, Name: "Nightly", ApplicationID: ptr(1), InterfaceIDs: []int64{11}, InternalActivityIDs: []int64{30}},
	}
	for _, p := range payloads {
		require.NoError(t, r.UpsertCatalog(ctx, nil, p))
	}

	crs := []struct {
		cr   domain.ChangeRequest
		kind domain.ArtifactType
		id   int64
	}{
		{domain.ChangeRequest{ID: 100, Number: "CR-100", Title: "CRM upgrade", Status: "submitted", InitiativeID: "INIT-2"}, domain.ArtifactApplication, 2},
		{domain.ChangeRequest{ID: 101, Number: "CR-101", Title: "Own change", Status: "approved", InitiativeID: "INIT-1"}, domain.ArtifactApplication, 1},
		{domain.ChangeRequest{ID: 102, Number: "CR-102", Title: "Unassigned", Status: "approved"}, domain.ArtifactInterface, 10},
		{domain.ChangeRequest{ID: 103, Number: "CR-103", Title: "Done", Status: "completed", InitiativeID: "INIT-3"}, domain.ArtifactApplication, 3},
	}
	for _, c := range crs {
		require.NoError(t, r.UpsertChangeRequest(ctx, nil, c.cr))
		require.NoError(t, r.LinkChangeRequest(ctx, nil, c.cr.ID, c.kind, c.id))
	}
	return r
}

func TestAnalyzeApplication(t *testing.T) {
	c := Cascader{Repo: newCatalog(t)}
	a, err := c.Analyze(context.Background(), domain.ArtifactApplication, 1, "INIT-1")
	require.NoError(t, err)

	assert.Equal(t, Primary{ArtifactType: domain.ArtifactApplication, ID: 1, Name: "Billing"}, a.PrimaryArtifact)
	assert.Equal(t, []Item{
		{ID: 10, Name: "IML-10", Reason: "Provider application being modified"},
		{ID: 11, Name: "IML-11", Reason: "Consumer application being modified"},
	}, a.RequiredCheckouts.Interfaces)
	assert.Equal(t, []Item{
		{ID: 2, Name: "CRM", Reason: "Connected via interface IML-10"},
		{ID: 3, Name: "Ledger", Reason: "Connected via interface IML-11"},
	}, a.RequiredCheckouts.Applications)
	assert.Equal(t, []Item{{ID: 20, Name: "Order to Cash", Reason: "Uses interfaces affected by application changes"}}, a.RequiredCheckouts.BusinessProcesses)
	assert.Equal(t, []Item{{ID: 30, Name: "Rate", Reason: "Internal capability of the application"}}, a.RequiredCheckouts.InternalActivities)
	assert.Equal(t, []Item{{ID: 40, Name: "Nightly", Reason: "Technical process within the application"}}, a.RequiredCheckouts.TechnicalProcesses)

	require.Len(t, a.CrossInitiativeImpacts, 2)
	assert.Equal(t, int64(100), a.CrossInitiativeImpacts[0].ChangeRequestID)
	assert.Equal(t, "INIT-2", a.CrossInitiativeImpacts[0].InitiativeID)
	assert.Equal(t, int64(102), a.CrossInitiativeImpacts[1].ChangeRequestID)
	assert.Equal(t, domain.ArtifactInterface, a.CrossInitiativeImpacts[1].ConflictType)

	_, touched := a.Touched(domain.ArtifactApplication, 2)
	assert.True(t, touched)
	_, touched = a.Touched(domain.ArtifactApplication, 3)
	assert.False(t, touched)

	assert.Equal(t, RiskMedium, a.RiskLevel)
	assert.Equal(t, Summary{TotalRequiredCheckouts: 7, CrossInitiativeConflicts: 2, EstimatedComplexity: "Moderate"}, a.Summary)
}

func TestAnalyzeInterfaceIncludesPrimaryInChangeRequestCheck(t *testing.T) {
	c := Cascader{Repo: newCatalog(t)}
	a, err := c.Analyze(context.Background(), domain.ArtifactInterface, 10, "INIT-9")
	require.NoError(t, err)

	assert.Equal(t, []Item{
		{ID: 1, Name: "Billing", Reason: "Provider application for the interface"},
		{ID: 2, Name: "CRM", Reason: "Consumer application for the interface"},
	}, a.RequiredCheckouts.Applications)
	assert.Equal(t, []Item{{ID: 20, Name: "Order to Cash", Reason: "Business process uses this interface"}}, a.RequiredCheckouts.BusinessProcesses)
	assert.Empty(t, a.RequiredCheckouts.TechnicalProcesses)

	_, touched := a.Touched(domain.ArtifactInterface, 10)
	assert.True(t, touched)
	assert.Len(t, a.CrossInitiativeImpacts, 3)
}

func TestAnalyzeTechnicalProcess(t *testing.T) {
	c := Cascader{Repo: newCatalog(t)}
	a, err := c.Analyze(context.Background(), domain.ArtifactTechnicalProcess, 40, "INIT-1")
	require.NoError(t, err)
	assert.Equal(t, []Item{{ID: 1, Name: "Billing", Reason: "Owner application of the technical process"}}, a.RequiredCheckouts.Applications)
	assert.Equal(t, []Item{{ID: 11, Name: "IML-11", Reason: "Interface used by the technical process"}}, a.RequiredCheckouts.Interfaces)
	assert.Equal(t, []Item{{ID: 30, Name: "Rate", Reason: "Internal activity used by the technical process"}}, a.RequiredCheckouts.InternalActivities)
}

func TestAnalyzeUnknownPrimary(t *testing.T) {
	c := Cascader{Repo: newCatalog(t)}
	a, err := c.Analyze(context.Background(), domain.ArtifactApplication, 99, "INIT-1")
	require.NoError(t, err)
	assert.Equal(t, "Application 99", a.PrimaryArtifact.Name)
	assert.Zero(t, a.RequiredCheckouts.Total())
	assert.Equal(t, RiskLow, a.RiskLevel)
	assert.Equal(t, "Simple", a.Summary.EstimatedComplexity)
}

func TestRiskAndComplexity(t *testing.T) {
	assert.Equal(t, RiskCritical, RiskLevel(0, 6))
	assert.Equal(t, RiskCritical, RiskLevel(21, 0))
	assert.Equal(t, RiskHigh, RiskLevel(0, 3))
	assert.Equal(t, RiskHigh, RiskLevel(11, 0))
	assert.Equal(t, RiskMedium, RiskLevel(0, 1))
	assert.Equal(t, RiskMedium, RiskLevel(6, 0))
	assert.Equal(t, RiskLow, RiskLevel(5, 0))

	assert.Equal(t, "Simple", Complexity(5))
	assert.Equal(t, "Moderate", Complexity(6))
	assert.Equal(t, "Complex", Complexity(11))
	assert.Equal(t, "Very Complex", Complexity(16))
}
