package merge

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const concatSeparator = "\n\n--- Merged from Initiative ---\n"

var (
	semverPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

	statePrecedence = map[string][]string{
		"status":         {"active", "in_progress", "under_review", "maintenance", "inactive", "deprecated", "decommissioned"},
		"approvalStatus": {"approved", "pending", "under_review", "rejected", "draft"},
	}

	domainHierarchy = map[string]int{
		"enterprise": 1,
		"customer":   2,
		"product":    3,
		"service":    4,
		"resource":   5,
		"partner":    6,
	}

	timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
)

const unknownDomain = 999

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func concatenateMerge(c Context) Result {
	if isEmpty(c.Baseline) && isEmpty(c.Initiative) {
		return Result{Value: nil, Confidence: 1, Explanation: "Both values are empty"}
	}
	if isEmpty(c.Baseline) {
		return Result{Value: c.Initiative, Confidence: 1, Explanation: "Only initiative value exists"}
	}
	if isEmpty(c.Initiative) {
		return Result{Value: c.Baseline, Confidence: 1, Explanation: "Only baseline value exists"}
	}
	base := fmt.Sprint(c.Baseline)
	init := fmt.Sprint(c.Initiative)
	if strings.Contains(base, init) {
		return Result{Value: c.Baseline, Confidence: 0.9, Explanation: "Baseline already contains initiative changes"}
	}
	if strings.Contains(init, base) {
		return Result{Value: c.Initiative, Confidence: 0.9, Explanation: "Initiative already contains baseline changes"}
	}
	return Result{
		Value:          base + concatSeparator + init,
		Confidence:     0.7,
		Explanation:    "Concatenated both values with clear separation",
		RequiresReview: true,
	}
}

// ParseTime accepts the timestamp layouts found in artifact payloads.
func ParseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func latestMerge(c Context) Result {
	base, okBase := ParseTime(c.Baseline)
	init, okInit := ParseTime(c.Initiative)
	if !okBase || !okInit {
		return Result{Value: c.Initiative, Confidence: 0.5, Explanation: "Invalid date format detected", RequiresReview: true}
	}
	if base.After(init) {
		return Result{Value: c.Baseline, Confidence: 1, Explanation: "Selected baseline value as it's more recent"}
	}
	return Result{Value: c.Initiative, Confidence: 1, Explanation: "Selected initiative value as it's more recent"}
}

type semver struct{ major, minor, patch int }

func parseSemver(v any) (semver, bool) {
	s, ok := v.(string)
	if !ok {
		return semver{}, false
	}
	m := semverPattern.FindStringSubmatch(s)
	if m == nil {
		return semver{}, false
	}
	var out semver
	out.major, _ = strconv.Atoi(m[1])
	out.minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		out.patch, _ = strconv.Atoi(m[3])
	}
	return out, true
}

func incrementMerge(c Context) Result {
	orig, ok1 := parseSemver(c.Original)
	base, ok2 := parseSemver(c.Baseline)
	init, ok3 := parseSemver(c.Initiative)
	if !ok1 || !ok2 || !ok3 {
		return Result{Value: c.Initiative, Confidence: 0.5, Explanation: "Unable to parse version format", RequiresReview: true}
	}
	if base.major > orig.major && init.major > orig.major {
		return Result{
			Value:          fmt.Sprintf("%d.0.0", max(base.major, init.major)),
			Confidence:     0.5,
			Explanation:    "Both branches incremented major version",
			RequiresReview: true,
		}
	}
	merged := semver{
		major: max(base.major, init.major),
		minor: max(base.minor, init.minor),
		patch: max(base.patch, init.patch),
	}
	if base == init {
		merged.patch++
	}
	return Result{
		Value:       fmt.Sprintf("%d.%d.%d", merged.major, merged.minor, merged.patch),
		Confidence:  0.8,
		Explanation: "Merged version numbers taking highest components",
	}
}

// Number converts JSON-shaped numerics to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func averageMerge(c Context) Result {
	base, ok1 := Number(c.Baseline)
	init, ok2 := Number(c.Initiative)
	if !ok1 || !ok2 {
		return Result{Value: c.Baseline, Confidence: 0, Explanation: "Values are not numeric", RequiresReview: true}
	}
	avg := (base + init) / 2
	var pct float64
	if denom := math.Max(base, init); denom != 0 {
		pct = math.Abs(base-init) / denom
	}
	confidence := 0.6
	if pct < 0.1 {
		confidence = 0.9
	}
	return Result{
		Value:          avg,
		Confidence:     confidence,
		Explanation:    fmt.Sprintf("Averaged values (%.1f%% difference)", pct*100),
		RequiresReview: pct > 0.2,
	}
}

// StatePrecedence returns the precedence list used for a status-like field,
// most active first.
func StatePrecedence(field string) []string {
	if states, ok := statePrecedence[field]; ok {
		return states
	}
	return statePrecedence["status"]
}

func indexOf(list []string, v any) int {
	s, ok := v.(string)
	if !ok {
		return -1
	}
	for i, item := range list {
		if item == s {
			return i
		}
	}
	return -1
}

func stateMachineMerge(c Context) Result {
	states := StatePrecedence(c.Field)
	bi := indexOf(states, c.Baseline)
	ii := indexOf(states, c.Initiative)
	if bi == -1 || ii == -1 {
		return Result{Value: c.Baseline, Confidence: 0.5, Explanation: "Unknown status value", RequiresReview: true}
	}
	value, source := c.Initiative, "initiative"
	if bi < ii {
		value, source = c.Baseline, "baseline"
	}
	gap := bi - ii
	if gap < 0 {
		gap = -gap
	}
	return Result{
		Value:          value,
		Confidence:     0.8,
		Explanation:    fmt.Sprintf("Selected %s status as it represents a more active state", source),
		RequiresReview: gap > 2,
	}
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

func difference(a, b []any) []any {
	var out []any
	for _, item := range a {
		if !containsValue(b, item) {
			out = append(out, item)
		}
	}
	return out
}

func dedupe(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		if !containsValue(out, item) {
			out = append(out, item)
		}
	}
	return out
}

// identity keys array items: objects carrying an "id" are the same item even
// when their other fields differ.
func identity(v any) string {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["id"]; ok {
			return "id:" + fmt.Sprint(id)
		}
	}
	return fmt.Sprintf("%#v", v)
}

// sharesIdentity reports whether an item removed on one side reappears,
// changed, among the other side's additions.
func sharesIdentity(removed, added []any) bool {
	for _, r := range removed {
		for _, a := range added {
			if identity(r) == identity(a) {
				return true
			}
		}
	}
	return false
}

func arrayMerge(c Context) Result {
	base, ok1 := c.Baseline.([]any)
	init, ok2 := c.Initiative.([]any)
	if !ok1 || !ok2 {
		return Result{Value: c.Baseline, Confidence: 0, Explanation: "Values are not arrays", RequiresReview: true}
	}
	orig, _ := c.Original.([]any)

	baseAdded := difference(base, orig)
	baseRemoved := difference(orig, base)
	initAdded := difference(init, orig)
	initRemoved := difference(orig, init)

	collides := sharesIdentity(baseRemoved, initAdded) || sharesIdentity(initRemoved, baseAdded)
	if collides {
		return Result{
			Value:          dedupe(append(append([]any{}, base...), init...)),
			Confidence:     0.5,
			Explanation:    "Conflicting additions and removals detected",
			RequiresReview: true,
		}
	}

	var merged []any
	for _, item := range orig {
		if !containsValue(baseRemoved, item) && !containsValue(initRemoved, item) {
			merged = append(merged, item)
		}
	}
	merged = append(merged, baseAdded...)
	for _, item := range initAdded {
		if !containsValue(baseAdded, item) {
			merged = append(merged, item)
		}
	}
	return Result{Value: dedupe(merged), Confidence: 0.8, Explanation: "Merged arrays preserving all changes"}
}

func objectMerge(c Context) Result {
	base, ok1 := c.Baseline.(map[string]any)
	init, ok2 := c.Initiative.(map[string]any)
	if !ok1 || !ok2 {
		return Result{Value: c.Baseline, Confidence: 0, Explanation: "Values are not objects", RequiresReview: true}
	}
	orig, _ := c.Original.(map[string]any)

	keys := map[string]struct{}{}
	for _, m := range []map[string]any{orig, base, init} {
		for k := range m {
			keys[k] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	merged := make(map[string]any, len(sorted))
	var conflicts []string
	for _, k := range sorted {
		o, b, i := orig[k], base[k], init[k]
		switch {
		case Equal(b, i), Equal(o, i):
			merged[k] = b
		case Equal(o, b):
			merged[k] = i
		default:
			conflicts = append(conflicts, k)
			merged[k] = b
		}
	}
	if len(conflicts) > 0 {
		return Result{
			Value:          merged,
			Confidence:     0.6,
			Explanation:    "Conflicts in fields: " + strings.Join(conflicts, ", "),
			RequiresReview: true,
		}
	}
	return Result{Value: merged, Confidence: 1, Explanation: "Objects merged without conflicts"}
}

func domainPriority(v any) int {
	s, ok := v.(string)
	if !ok {
		return unknownDomain
	}
	if p, ok := domainHierarchy[strings.ToLower(s)]; ok {
		return p
	}
	return unknownDomain
}

func domainHierarchyMerge(c Context) Result {
	bp := domainPriority(c.Baseline)
	ip := domainPriority(c.Initiative)
	if bp < ip && ip < unknownDomain {
		return Result{Value: c.Baseline, Confidence: 0.7, Explanation: "Baseline represents a higher-level domain", RequiresReview: true}
	}
	gap := bp - ip
	if gap < 0 {
		gap = -gap
	}
	return Result{
		Value:          c.Initiative,
		Confidence:     0.8,
		Explanation:    "Initiative value selected for domain classification",
		RequiresReview: gap > 2,
	}
}

func interfaceContractMerge(c Context) Result {
	if isContractField(c.Field) {
		return Result{Value: c.Initiative, Confidence: 0.5, Explanation: "Critical interface contract field changed", RequiresReview: true}
	}
	return Result{Value: c.Initiative, Confidence: 0.8, Explanation: "Non-critical interface field updated"}
}
