// Package conflict compares a working copy against the baseline it branched
// from and the current baseline, and scores what it finds.
package conflict

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/merge"
)

const (
	ResolveBaseline   = "baseline"
	ResolveInitiative = "initiative"
	ResolveMerge      = "merge"
)

const (
	StrategyAuto     = "auto"
	StrategyManual   = "manual"
	StrategyEscalate = "escalate"
)

const (
	ImpactInfo     = "info"
	ImpactWarning  = "warning"
	ImpactBreaking = "breaking"
)

const maxRiskScore = 100

// Dependent is an artifact whose current baseline records a dependency on the
// artifact under analysis.
type Dependent struct {
	ArtifactType domain.ArtifactType
	ArtifactID   int64
	Strength     string
}

// Input is one artifact's three snapshots plus what depends on it.
type Input struct {
	ArtifactType domain.ArtifactType
	Original     map[string]any
	Baseline     map[string]any
	Initiative   map[string]any
	Dependents   []Dependent
	// Endpoints are the applications on either end of an interface.
	Endpoints []int64
}

// Analyze detects conflicts and scores them.
func Analyze(in Input) domain.ConflictReport {
	fields := Detect(in.ArtifactType, in.Original, in.Baseline, in.Initiative)
	impacts := DependencyImpacts(in.ArtifactType, fields, in.Dependents, in.Endpoints)
	score := RiskScore(fields, impacts)
	return domain.ConflictReport{
		Fields:            fields,
		DependencyImpacts: impacts,
		RiskScore:         score,
		SuggestedStrategy: SuggestStrategy(score, AllAutoResolvable(fields), len(fields)),
	}
}

// Detect walks the union of keys of the three snapshots. A field conflicts
// when both sides moved away from the original and did not land on the same
// value. Plain objects present on every side are walked with dotted paths.
func Detect(t domain.ArtifactType, original, baseline, initiative map[string]any) []domain.FieldConflict {
	var out []domain.FieldConflict
	walk(t, original, baseline, initiative, nil, &out)
	return out
}

func walk(t domain.ArtifactType, orig, base, init map[string]any, path []string, out *[]domain.FieldConflict) {
	for _, key := range unionKeys(orig, base, init) {
		o, b, i := orig[key], base[key], init[key]
		p := append(append([]string{}, path...), key)

		om, oIsMap := o.(map[string]any)
		bm, bIsMap := asObject(b)
		im, iIsMap := asObject(i)
		if oIsMap && bIsMap && iIsMap {
			walk(t, om, bm, im, p, out)
			continue
		}

		if merge.Equal(o, b) || merge.Equal(o, i) || merge.Equal(b, i) {
			continue
		}
		fieldPath := strings.Join(p, ".")
		value := i
		if value == nil {
			value = b
		}
		*out = append(*out, domain.FieldConflict{
			Field:               fieldPath,
			OriginalValue:       o,
			BaselineValue:       b,
			InitiativeValue:     i,
			Severity:            Severity(t, fieldPath, key),
			AutoResolvable:      autoResolvable(key, b, i),
			SuggestedResolution: suggestResolution(key, b, i),
			MergeStrategy:       merge.ForField(t, key, value).String(),
		})
	}
}

// asObject treats a missing value as an empty object so a nested object added
// or dropped on one side is still compared key by key.
func asObject(v any) (map[string]any, bool) {
	if v == nil {
		return map[string]any{}, true
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func unionKeys(maps ...map[string]any) []string {
	seen := map[string]struct{}{}
	for _, m := range maps {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func autoResolvable(key string, base, init any) bool {
	if isTimestampField(key) {
		return true
	}
	if bs, ok := base.(string); ok {
		if is, ok := init.(string); ok {
			return strings.Contains(bs, is) || strings.Contains(is, bs)
		}
	}
	bn, ok1 := merge.Number(base)
	in, ok2 := merge.Number(init)
	if ok1 && ok2 {
		avg := (bn + in) / 2
		if avg == 0 {
			return false
		}
		return math.Abs(bn-in)/math.Abs(avg) < 0.1
	}
	return freeTextFields[key] && (base == nil || init == nil)
}

func suggestResolution(key string, base, init any) string {
	if key == "status" {
		if base == "active" || base == "enabled" {
			return ResolveBaseline
		}
		if init == "active" || init == "enabled" {
			return ResolveInitiative
		}
	}
	if isVersionField(key) {
		bs, ok1 := base.(string)
		is, ok2 := init.(string)
		if ok1 && ok2 {
			if bs > is {
				return ResolveBaseline
			}
			return ResolveInitiative
		}
	}
	if isTimestampField(key) {
		bt, ok1 := merge.ParseTime(base)
		it, ok2 := merge.ParseTime(init)
		if ok1 && ok2 {
			if bt.After(it) {
				return ResolveBaseline
			}
			return ResolveInitiative
		}
	}
	return ResolveMerge
}

// DependencyImpacts rates what a set of conflicts means for the artifacts
// that depend on this one.
func DependencyImpacts(t domain.ArtifactType, fields []domain.FieldConflict, dependents []Dependent, endpoints []int64) []domain.DependencyImpact {
	var critical, high []string
	for _, f := range fields {
		switch f.Severity {
		case SeverityCritical:
			critical = append(critical, f.Field)
		case SeverityHigh:
			high = append(high, f.Field)
		}
	}

	var out []domain.DependencyImpact
	for _, d := range dependents {
		switch {
		case len(critical) > 0:
			out = append(out, domain.DependencyImpact{
				ArtifactType: d.ArtifactType,
				ArtifactID:   d.ArtifactID,
				ImpactType:   ImpactBreaking,
				Description:  fmt.Sprintf("Critical changes to %s may break this dependency", strings.Join(critical, ", ")),
			})
		case len(high) > 0 && d.Strength == "strong":
			out = append(out, domain.DependencyImpact{
				ArtifactType: d.ArtifactType,
				ArtifactID:   d.ArtifactID,
				ImpactType:   ImpactWarning,
				Description:  fmt.Sprintf("Changes to %s may affect this dependency", strings.Join(high, ", ")),
			})
		}
	}

	if t == domain.ArtifactInterface && touchesContract(fields) {
		for _, appID := range endpoints {
			out = append(out, domain.DependencyImpact{
				ArtifactType: domain.ArtifactApplication,
				ArtifactID:   appID,
				ImpactType:   ImpactWarning,
				Description:  "Interface contract changes may require updates to consumer and provider applications",
			})
		}
	}
	return out
}

func touchesContract(fields []domain.FieldConflict) bool {
	for _, f := range fields {
		for _, c := range merge.ContractFields {
			if f.Field == c {
				return true
			}
		}
	}
	return false
}

// RiskScore weighs conflicts by severity and dependency impacts by kind,
// capped at 100.
func RiskScore(fields []domain.FieldConflict, impacts []domain.DependencyImpact) int {
	score := 0
	for _, f := range fields {
		score += severityWeight(f.Severity)
		if !f.AutoResolvable {
			score += 2
		}
	}
	for _, d := range impacts {
		score += impactWeight(d.ImpactType)
	}
	return min(score, maxRiskScore)
}

func SuggestStrategy(score int, autoResolvable bool, count int) string {
	switch {
	case score > 50 || count > 10:
		return StrategyEscalate
	case autoResolvable && score < 20:
		return StrategyAuto
	}
	return StrategyManual
}

func AllAutoResolvable(fields []domain.FieldConflict) bool {
	for _, f := range fields {
		if !f.AutoResolvable {
			return false
		}
	}
	return true
}
