package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

func TestResolveCarriesOneSidedChanges(t *testing.T) {
	orig := map[string]any{"name": "Billing", "team": "a", "status": "draft", "os": "linux"}
	base := map[string]any{"name": "Billing", "team": "b", "status": "active", "os": "linux"}
	init := map[string]any{"name": "Billing v2", "team": "a", "status": "inactive"}

	merged, unresolved := Resolve(domain.ArtifactApplication, orig, base, init, TakeInitiative)
	assert.Empty(t, unresolved)
	assert.Equal(t, map[string]any{
		"name":   "Billing v2",
		"team":   "b",
		"status": "inactive",
	}, merged)

	merged, _ = Resolve(domain.ArtifactApplication, orig, base, init, TakeBaseline)
	assert.Equal(t, "active", merged["status"])
	assert.Equal(t, "Billing v2", merged["name"])
}

func TestResolveAutoLeavesManualFields(t *testing.T) {
	orig := map[string]any{"team": "a", "lastChangeDate": "2024-01-01T00:00:00Z"}
	base := map[string]any{"team": "b", "lastChangeDate": "2024-03-01T00:00:00Z"}
	init := map[string]any{"team": "c", "lastChangeDate": "2024-02-01T00:00:00Z"}

	merged, unresolved := Resolve(domain.ArtifactApplication, orig, base, init, AutoValue(domain.ArtifactApplication))
	assert.Equal(t, []string{"team"}, unresolved)
	assert.Equal(t, "c", merged["team"])
	assert.Equal(t, "2024-03-01T00:00:00Z", merged["lastChangeDate"])
}

func TestResolveNumericAverage(t *testing.T) {
	merged, unresolved := Resolve(domain.ArtifactApplication,
		map[string]any{"metadata": map[string]any{"cost": 90.0}},
		map[string]any{"metadata": map[string]any{"cost": 100.0}},
		map[string]any{"metadata": map[string]any{"cost": 96.0}},
		AutoValue(domain.ArtifactApplication),
	)
	assert.Empty(t, unresolved)
	assert.Equal(t, map[string]any{"cost": 98.0}, merged["metadata"])
}

func TestResolvePayload(t *testing.T) {
	orig := domain.Application{ID: 10, Name: "Billing", Status: "draft", Team: "a"}
	base := domain.Application{ID: 10, Name: "Billing", Status: "active", Team: "a"}
	init := domain.Application{ID: 10, Name: "Renamed", Status: "draft", Team: "a"}

	p, unresolved, err := ResolvePayload(orig, base, init, TakeInitiative)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	app, ok := p.(domain.Application)
	require.True(t, ok)
	assert.Equal(t, "Renamed", app.Name)
	assert.Equal(t, "active", app.Status)
	assert.Equal(t, int64(10), app.ID)

	_, _, err = ResolvePayload(orig, base, nil, TakeInitiative)
	assert.Error(t, err)
}
