package conflict

import (
	"fmt"
	"strings"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/merge"
)

// Picker chooses the value of one conflicting field. ok=false leaves the
// field unresolved.
type Picker func(f domain.FieldConflict) (value any, ok bool)

// TakeBaseline resolves every conflict to the current baseline.
func TakeBaseline(f domain.FieldConflict) (any, bool) { return f.BaselineValue, true }

// TakeInitiative resolves every conflict to the working copy.
func TakeInitiative(f domain.FieldConflict) (any, bool) { return f.InitiativeValue, true }

// AutoValue resolves only auto-resolvable conflicts.
func AutoValue(t domain.ArtifactType) Picker {
	return func(f domain.FieldConflict) (any, bool) {
		if !f.AutoResolvable {
			return nil, false
		}
		return autoResolveField(t, f), true
	}
}

// autoResolveField picks the value of an auto-resolvable conflict. A string
// contained in the other resolves to the longer one.
func autoResolveField(t domain.ArtifactType, f domain.FieldConflict) any {
	bs, ok1 := f.BaselineValue.(string)
	is, ok2 := f.InitiativeValue.(string)
	if ok1 && ok2 {
		switch {
		case strings.Contains(bs, is):
			return bs
		case strings.Contains(is, bs):
			return is
		}
	}
	key := f.Field
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	ctx := merge.Context{
		ArtifactType: t,
		Field:        key,
		Original:     f.OriginalValue,
		Baseline:     f.BaselineValue,
		Initiative:   f.InitiativeValue,
	}
	if isTimestampField(key) {
		return merge.Latest.Apply(ctx).Value
	}
	if _, isNum := merge.Number(f.BaselineValue); isNum {
		return merge.Average.Apply(ctx).Value
	}
	if f.SuggestedResolution == ResolveBaseline {
		return f.BaselineValue
	}
	return f.InitiativeValue
}

// Resolve merges the three snapshots. Changes made on one side only are
// carried over; conflicting fields are settled by pick. The paths pick
// declined are returned and keep the working copy's value.
func Resolve(t domain.ArtifactType, original, baseline, initiative map[string]any, pick Picker) (map[string]any, []string) {
	byPath := map[string]domain.FieldConflict{}
	for _, f := range Detect(t, original, baseline, initiative) {
		byPath[f.Field] = f
	}
	var unresolved []string
	merged := resolveObject(original, baseline, initiative, "", byPath, pick, &unresolved)
	return merged, unresolved
}

func resolveObject(orig, base, init map[string]any, prefix string, conflicts map[string]domain.FieldConflict, pick Picker, unresolved *[]string) map[string]any {
	out := map[string]any{}
	for _, key := range unionKeys(orig, base, init) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		o, b, i := orig[key], base[key], init[key]
		_, bPresent := base[key]
		_, iPresent := init[key]

		om, oIsMap := o.(map[string]any)
		bm, bIsMap := asObject(b)
		im, iIsMap := asObject(i)
		if oIsMap && bIsMap && iIsMap {
			out[key] = resolveObject(om, bm, im, path, conflicts, pick, unresolved)
			continue
		}

		var (
			value   any
			present bool
		)
		if f, ok := conflicts[path]; ok {
			if v, ok := pick(f); ok {
				value, present = v, v != nil
			} else {
				*unresolved = append(*unresolved, path)
				value, present = i, iPresent
			}
		} else if merge.Equal(o, i) {
			value, present = b, bPresent
		} else {
			value, present = i, iPresent
		}
		if present {
			out[key] = value
		}
	}
	return out
}

// ResolvePayload runs Resolve over typed snapshots and decodes the result
// back into the artifact's variant.
func ResolvePayload(original, baseline, initiative domain.Payload, pick Picker) (domain.Payload, []string, error) {
	if initiative == nil {
		return nil, nil, fmt.Errorf("resolve: working copy payload is required")
	}
	t := initiative.Type()
	of, err := fieldsOrEmpty(original)
	if err != nil {
		return nil, nil, err
	}
	bf, err := fieldsOrEmpty(baseline)
	if err != nil {
		return nil, nil, err
	}
	inf, err := domain.Fields(initiative)
	if err != nil {
		return nil, nil, err
	}
	merged, unresolved := Resolve(t, of, bf, inf, pick)
	p, err := domain.FromFields(t, initiative.Key(), merged)
	if err != nil {
		return nil, nil, err
	}
	return p, unresolved, nil
}

func fieldsOrEmpty(p domain.Payload) (map[string]any, error) {
	if p == nil {
		return map[string]any{}, nil
	}
	return domain.Fields(p)
}
