package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

type fakeSource struct {
	links   map[string][]Link
	missing map[string]bool
}

func (f fakeSource) Node(_ context.Context, t domain.ArtifactType, id int64) (Node, error) {
	nid := NodeID(t, id)
	if f.missing[nid] {
		return Node{}, ErrNodeNotFound
	}
	return Node{ID: nid, ArtifactType: t, ArtifactID: id, Name: nid, Version: 1}, nil
}

func (f fakeSource) Links(_ context.Context, t domain.ArtifactType, id int64) ([]Link, error) {
	return f.links[NodeID(t, id)], nil
}

func link(t domain.ArtifactType, id int64, strength string) Link {
	return Link{ArtifactType: t, ArtifactID: id, Type: "requires", Strength: strength}
}

func edge(from, to, strength string) Edge {
	return Edge{From: from, To: to, Type: "requires", Strength: strength}
}

func TestDetectCyclesRotation(t *testing.T) {
	nodes := []Node{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	edges := []Edge{edge("A", "B", StrengthStrong), edge("B", "C", StrengthStrong), edge("C", "A", StrengthStrong)}

	cycles := DetectCycles(nodes, edges)
	require.NotEmpty(t, cycles)
	got := cycles[0].Nodes
	require.Len(t, got, 4)
	assert.Equal(t, got[0], got[3])
	// rotation of A,B,C
	ring := []string{"A", "B", "C"}
	start := indexOf(ring, got[0])
	require.GreaterOrEqual(t, start, 0)
	for i := 0; i < 3; i++ {
		assert.Equal(t, ring[(start+i)%3], got[i])
	}
	assert.Equal(t, "error", cycles[0].Severity)
}

func TestDetectCyclesShortIsWarning(t *testing.T) {
	cycles := DetectCycles([]Node{{ID: "A"}, {ID: "B"}}, []Edge{edge("A", "B", StrengthWeak), edge("B", "A", StrengthWeak)})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A", "B", "A"}, cycles[0].Nodes)
	assert.Equal(t, "warning", cycles[0].Severity)
}

func TestDetectCyclesAcyclic(t *testing.T) {
	cycles := DetectCycles([]Node{{ID: "A"}, {ID: "B"}, {ID: "C"}}, []Edge{edge("A", "B", StrengthStrong), edge("A", "C", StrengthStrong), edge("B", "C", StrengthStrong)})
	assert.Empty(t, cycles)
}

func TestAnalyzeImpact(t *testing.T) {
	// B and C depend on A, D depends on B
	edges := []Edge{
		edge("B", "A", StrengthStrong),
		edge("C", "A", StrengthWeak),
		edge("D", "B", StrengthStrong),
		edge("E", "C", StrengthStrong),
	}
	got := AnalyzeImpact("A", edges)
	assert.Equal(t, 2, got.DirectImpacts)
	assert.Equal(t, 2, got.IndirectImpacts)
	assert.Equal(t, [][]string{{"A", "B"}, {"A", "B", "D"}}, got.CriticalPaths)
	assert.Equal(t, RiskLow, got.RiskLevel)
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, RiskCritical, RiskLevel(21, 0))
	assert.Equal(t, RiskCritical, RiskLevel(0, 11))
	assert.Equal(t, RiskHigh, RiskLevel(11, 0))
	assert.Equal(t, RiskHigh, RiskLevel(0, 6))
	assert.Equal(t, RiskMedium, RiskLevel(6, 0))
	assert.Equal(t, RiskMedium, RiskLevel(0, 3))
	assert.Equal(t, RiskLow, RiskLevel(5, 2))
}

func TestBuildRespectsDepthAndVisited(t *testing.T) {
	src := fakeSource{links: map[string][]Link{
		"application-1":      {link(domain.ArtifactInterface, 2, StrengthStrong)},
		"interface-2":        {link(domain.ArtifactApplication, 1, StrengthStrong), link(domain.ArtifactBusinessProcess, 3, StrengthWeak)},
		"business_process-3": {link(domain.ArtifactInterface, 4, StrengthStrong)},
		"interface-4":        {link(domain.ArtifactApplication, 5, StrengthStrong)},
	}}

	g, err := Build(context.Background(), src, domain.ArtifactApplication, 1, 2)
	require.NoError(t, err)
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"application-1", "interface-2", "business_process-3"}, ids)
	assert.Equal(t, "application-1", g.Root)
	// the back edge to the root is kept and closes a cycle
	assert.Len(t, g.Edges, 3)
	require.Len(t, g.Cycles, 1)
	assert.Equal(t, []string{"application-1", "interface-2", "application-1"}, g.Cycles[0].Nodes)
}

func TestBuildSkipsMissingNodes(t *testing.T) {
	src := fakeSource{
		links: map[string][]Link{
			"application-1": {link(domain.ArtifactInterface, 2, StrengthStrong), link(domain.ArtifactInterface, 9, StrengthStrong)},
		},
		missing: map[string]bool{"interface-9": true},
	}
	g, err := Build(context.Background(), src, domain.ArtifactApplication, 1, 0)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 2)

	_, err = Build(context.Background(), src, domain.ArtifactInterface, 9, 3)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestNewReport(t *testing.T) {
	g := Graph{
		Root: "application-1",
		Nodes: []Node{
			{ID: "application-1", ArtifactType: domain.ArtifactApplication, ArtifactID: 1},
			{ID: "interface-2", ArtifactType: domain.ArtifactInterface, ArtifactID: 2, Name: "IML-2"},
		},
		Impact: Impact{RiskLevel: RiskLow},
	}
	r := NewReport(g, "update")
	assert.Equal(t, 1, r.TotalImpacts)
	assert.Equal(t, 0, r.CriticalImpacts)
	require.Len(t, r.AffectedArtifacts, 1)
	assert.Equal(t, "update on application 1", r.AffectedArtifacts[0].Reason)
	assert.Equal(t, []string{"Interface changes detected. Coordinate with consumer teams."}, r.Recommendations)
}

func TestCache(t *testing.T) {
	c, err := NewCache(1)
	require.NoError(t, err)
	k1 := CacheKey{ArtifactType: domain.ArtifactApplication, ArtifactID: 1, MaxDepth: 3, Revision: 7}
	k2 := k1
	k2.Revision = 8
	c.Add(k1, Graph{Root: "a"})
	got, ok := c.Get(k1)
	require.True(t, ok)
	assert.Equal(t, "a", got.Root)
	c.Add(k2, Graph{Root: "b"})
	_, ok = c.Get(k1)
	assert.False(t, ok)

	var nilCache *Cache
	_, ok = nilCache.Get(k1)
	assert.False(t, ok)
	nilCache.Add(k1, Graph{})
}
