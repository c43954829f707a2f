package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

// Strategy selects the algorithm used to merge one conflicting field.
type Strategy int

const (
	Manual Strategy = iota
	Latest
	Concatenate
	Increment
	Average
	StateMachine
	ArrayMerge
	ObjectMerge
	DomainHierarchy
	InterfaceContract
)

var strategyNames = map[Strategy]string{
	Manual:            "manual",
	Latest:            "latest",
	Concatenate:       "concatenate",
	Increment:         "increment",
	Average:           "average",
	StateMachine:      "state-machine",
	ArrayMerge:        "array-merge",
	ObjectMerge:       "object-merge",
	DomainHierarchy:   "tm-forum-domain",
	InterfaceContract: "interface-contract",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Strategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return Manual, fmt.Errorf("unknown merge strategy %q", name)
}

func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid merge strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Context is the three-way input of a field merge.
type Context struct {
	ArtifactType domain.ArtifactType
	Field        string
	Original     any
	Baseline     any
	Initiative   any
}

// Result is a merged value with how much it can be trusted.
type Result struct {
	Value          any     `json:"value"`
	Confidence     float64 `json:"confidence"`
	Explanation    string  `json:"explanation"`
	RequiresReview bool    `json:"requires_review"`
}

type mergeFunc func(Context) Result

var strategies = [...]mergeFunc{
	Manual:            manualMerge,
	Latest:            latestMerge,
	Concatenate:       concatenateMerge,
	Increment:         incrementMerge,
	Average:           averageMerge,
	StateMachine:      stateMachineMerge,
	ArrayMerge:        arrayMerge,
	ObjectMerge:       objectMerge,
	DomainHierarchy:   domainHierarchyMerge,
	InterfaceContract: interfaceContractMerge,
}

// Apply runs the strategy. Strategies are pure.
func (s Strategy) Apply(c Context) Result {
	if !s.Valid() {
		return manualMerge(c)
	}
	return strategies[s](c)
}

// ContractFields are the interface fields that define its contract.
var ContractFields = []string{"interfaceType", "protocol", "dataFlow", "middleware"}

func isContractField(field string) bool {
	for _, f := range ContractFields {
		if f == field {
			return true
		}
	}
	return false
}

// ForField picks the strategy for a field from its name, falling back to the
// JSON kind of value.
func ForField(t domain.ArtifactType, field string, value any) Strategy {
	switch {
	case field == "status" || strings.Contains(field, "Status"):
		return StateMachine
	case field == "version" || strings.Contains(field, "Version"):
		return Increment
	case strings.HasSuffix(field, "Date") || strings.HasSuffix(field, "At"):
		return Latest
	case field == "description" || field == "documentation" || field == "notes":
		return Concatenate
	case strings.HasPrefix(field, "tmf"):
		return DomainHierarchy
	case t == domain.ArtifactInterface && isContractField(field):
		return InterfaceContract
	}
	switch value.(type) {
	case []any:
		return ArrayMerge
	case map[string]any:
		return ObjectMerge
	case float64, float32, int, int64, int32:
		return Average
	}
	return Manual
}

// Merge picks the strategy for the field and applies it.
func Merge(c Context) (Strategy, Result) {
	value := c.Initiative
	if value == nil {
		value = c.Baseline
	}
	s := ForField(c.ArtifactType, c.Field, value)
	return s, s.Apply(c)
}

// Equal compares two JSON-shaped values structurally.
func Equal(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}

func manualMerge(c Context) Result {
	return Result{
		Value:          c.Baseline,
		Confidence:     0,
		Explanation:    "Manual review required",
		RequiresReview: true,
	}
}
