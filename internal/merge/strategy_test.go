package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

func TestParseStrategyRoundTrip(t *testing.T) {
	for s, name := range strategyNames {
		parsed, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
		assert.Equal(t, name, s.String())
	}
	_, err := ParseStrategy("coin-flip")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Strategy(42).String())
}

func TestForField(t *testing.T) {
	cases := []struct {
		typ   domain.ArtifactType
		field string
		value any
		want  Strategy
	}{
		{domain.ArtifactApplication, "status", "active", StateMachine},
		{domain.ArtifactApplication, "approvalStatus", "approved", StateMachine},
		{domain.ArtifactApplication, "version", "1.0", Increment},
		{domain.ArtifactApplication, "lastChangeDate", "2024-01-01", Latest},
		{domain.ArtifactApplication, "updatedAt", "2024-01-01T00:00:00Z", Latest},
		{domain.ArtifactInterface, "dataAttributes", "orders", Manual},
		{domain.ArtifactApplication, "dateFormat", "ISO", Manual},
		{domain.ArtifactApplication, "description", "x", Concatenate},
		{domain.ArtifactApplication, "tmfDomain", "product", DomainHierarchy},
		{domain.ArtifactInterface, "protocol", "REST", InterfaceContract},
		{domain.ArtifactApplication, "protocol", "REST", Manual},
		{domain.ArtifactApplication, "tags", []any{"a"}, ArrayMerge},
		{domain.ArtifactApplication, "metadata", map[string]any{}, ObjectMerge},
		{domain.ArtifactApplication, "budget", 10.0, Average},
		{domain.ArtifactApplication, "name", "x", Manual},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ForField(tc.typ, tc.field, tc.value), tc.field)
	}
}

func TestConcatenate(t *testing.T) {
	res := Concatenate.Apply(Context{Baseline: "A full description", Initiative: "full description"})
	assert.Equal(t, "A full description", res.Value)
	assert.False(t, res.RequiresReview)

	res = Concatenate.Apply(Context{Baseline: "alpha", Initiative: "beta"})
	assert.Equal(t, "alpha\n\n--- Merged from Initiative ---\nbeta", res.Value)
	assert.True(t, res.RequiresReview)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)

	res = Concatenate.Apply(Context{Baseline: "", Initiative: "beta"})
	assert.Equal(t, "beta", res.Value)
}

func TestLatest(t *testing.T) {
	res := Latest.Apply(Context{Baseline: "2024-03-01T00:00:00Z", Initiative: "2024-02-01T00:00:00Z"})
	assert.Equal(t, "2024-03-01T00:00:00Z", res.Value)
	assert.False(t, res.RequiresReview)

	res = Latest.Apply(Context{Baseline: "soon", Initiative: "2024-02-01"})
	assert.Equal(t, "2024-02-01", res.Value)
	assert.True(t, res.RequiresReview)
}

func TestIncrement(t *testing.T) {
	res := Increment.Apply(Context{Original: "1.0", Baseline: "1.1", Initiative: "1.2"})
	assert.Equal(t, "1.2.0", res.Value)
	assert.False(t, res.RequiresReview)

	res = Increment.Apply(Context{Original: "1.0.0", Baseline: "1.1.0", Initiative: "1.1.0"})
	assert.Equal(t, "1.1.1", res.Value)

	res = Increment.Apply(Context{Original: "1.0.0", Baseline: "2.0.0", Initiative: "3.1.0"})
	assert.Equal(t, "3.0.0", res.Value)
	assert.True(t, res.RequiresReview)

	res = Increment.Apply(Context{Original: "v?", Baseline: "1.1", Initiative: "1.2"})
	assert.True(t, res.RequiresReview)
}

func TestAverage(t *testing.T) {
	res := Average.Apply(Context{Baseline: 100.0, Initiative: 95.0})
	assert.Equal(t, 97.5, res.Value)
	assert.False(t, res.RequiresReview)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)

	res = Average.Apply(Context{Baseline: 100.0, Initiative: 50.0})
	assert.True(t, res.RequiresReview)

	res = Average.Apply(Context{Baseline: 0.0, Initiative: 0.0})
	assert.Equal(t, 0.0, res.Value)
	assert.False(t, res.RequiresReview)

	res = Average.Apply(Context{Baseline: "ten", Initiative: 10.0})
	assert.True(t, res.RequiresReview)
}

func TestStateMachine(t *testing.T) {
	res := StateMachine.Apply(Context{Field: "status", Baseline: "in_progress", Initiative: "active"})
	assert.Equal(t, "active", res.Value)
	assert.False(t, res.RequiresReview)

	res = StateMachine.Apply(Context{Field: "status", Baseline: "active", Initiative: "decommissioned"})
	assert.Equal(t, "active", res.Value)
	assert.True(t, res.RequiresReview)

	res = StateMachine.Apply(Context{Field: "status", Baseline: "weird", Initiative: "active"})
	assert.Equal(t, "weird", res.Value)
	assert.True(t, res.RequiresReview)
}

func TestArrayMerge(t *testing.T) {
	res := ArrayMerge.Apply(Context{
		Original:   []any{"a", "b"},
		Baseline:   []any{"a", "b", "c"},
		Initiative: []any{"a", "d"},
	})
	assert.Equal(t, []any{"a", "c", "d"}, res.Value)
	assert.False(t, res.RequiresReview)

	// baseline dropped item 1 while the initiative edited it
	res = ArrayMerge.Apply(Context{
		Original:   []any{map[string]any{"id": 1.0, "v": "a"}},
		Baseline:   []any{},
		Initiative: []any{map[string]any{"id": 1.0, "v": "b"}},
	})
	assert.True(t, res.RequiresReview)
	assert.Equal(t, []any{map[string]any{"id": 1.0, "v": "b"}}, res.Value)
}

func TestObjectMerge(t *testing.T) {
	res := ObjectMerge.Apply(Context{
		Original:   map[string]any{"a": 1.0, "b": 1.0, "c": 1.0},
		Baseline:   map[string]any{"a": 2.0, "b": 1.0, "c": 5.0},
		Initiative: map[string]any{"a": 1.0, "b": 3.0, "c": 6.0},
	})
	assert.Equal(t, map[string]any{"a": 2.0, "b": 3.0, "c": 5.0}, res.Value)
	assert.True(t, res.RequiresReview)
	assert.Equal(t, "Conflicts in fields: c", res.Explanation)
}

func TestDomainHierarchy(t *testing.T) {
	res := DomainHierarchy.Apply(Context{Baseline: "customer", Initiative: "resource"})
	assert.Equal(t, "customer", res.Value)
	assert.True(t, res.RequiresReview)

	res = DomainHierarchy.Apply(Context{Baseline: "service", Initiative: "product"})
	assert.Equal(t, "product", res.Value)
	assert.False(t, res.RequiresReview)
}

func TestInterfaceContract(t *testing.T) {
	res := InterfaceContract.Apply(Context{Field: "protocol", Baseline: "SOAP", Initiative: "REST"})
	assert.Equal(t, "REST", res.Value)
	assert.True(t, res.RequiresReview)

	res = InterfaceContract.Apply(Context{Field: "frequency", Baseline: "daily", Initiative: "hourly"})
	assert.False(t, res.RequiresReview)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(5, 5.0))
	assert.True(t, Equal(map[string]any{"a": []any{1.0}}, map[string]any{"a": []any{1}}))
	assert.False(t, Equal("1", 1))
	assert.True(t, Equal(nil, nil))
}
