package conflict

import (
	"strings"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var (
	applicationSeverity = map[string]string{
		"name":                  SeverityCritical,
		"amlNumber":             SeverityCritical,
		"status":                SeverityHigh,
		"providesExtInterface":  SeverityHigh,
		"consumesExtInterfaces": SeverityHigh,
		"decommissionDate":      SeverityHigh,
		"version":               SeverityHigh,
		"deployment":            SeverityMedium,
		"uptime":                SeverityMedium,
		"team":                  SeverityMedium,
		"tmfDomain":             SeverityMedium,
		"description":           SeverityLow,
		"purpose":               SeverityLow,
	}
	interfaceSeverity = map[string]string{
		"imlNumber":             SeverityCritical,
		"providerApplicationId": SeverityCritical,
		"consumerApplicationId": SeverityCritical,
		"interfaceType":         SeverityHigh,
		"middleware":            SeverityHigh,
		"status":                SeverityHigh,
		"version":               SeverityHigh,
		"protocol":              SeverityHigh,
		"dataFlow":              SeverityMedium,
		"frequency":             SeverityMedium,
		"description":           SeverityLow,
		"sampleCode":            SeverityLow,
	}
	businessProcessSeverity = map[string]string{
		"processId":        SeverityCritical,
		"name":             SeverityCritical,
		"status":           SeverityHigh,
		"processType":      SeverityHigh,
		"businessFunction": SeverityHigh,
		"startEvent":       SeverityMedium,
		"endEvent":         SeverityMedium,
		"description":      SeverityLow,
		"documentation":    SeverityLow,
	}
	internalActivitySeverity = map[string]string{
		"name":        SeverityCritical,
		"status":      SeverityHigh,
		"processFlow": SeverityHigh,
		"department":  SeverityMedium,
		"description": SeverityLow,
	}
	technicalProcessSeverity = map[string]string{
		"name":           SeverityCritical,
		"status":         SeverityHigh,
		"implementation": SeverityHigh,
		"technology":     SeverityMedium,
		"description":    SeverityLow,
	}
)

// freeTextFields hold prose or audit data. They default to low severity and
// never block an automatic merge on their own.
var freeTextFields = map[string]bool{
	"updatedAt":      true,
	"lastChangeDate": true,
	"description":    true,
	"documentation":  true,
	"notes":          true,
	"comments":       true,
}

func severityTable(t domain.ArtifactType) map[string]string {
	switch t {
	case domain.ArtifactApplication:
		return applicationSeverity
	case domain.ArtifactInterface:
		return interfaceSeverity
	case domain.ArtifactBusinessProcess:
		return businessProcessSeverity
	case domain.ArtifactInternalProcess:
		return internalActivitySeverity
	case domain.ArtifactTechnicalProcess:
		return technicalProcessSeverity
	}
	return nil
}

// Severity rates a conflicting field of an artifact type. path is the dotted
// field path, key its last segment.
func Severity(t domain.ArtifactType, path, key string) string {
	if s, ok := severityTable(t)[path]; ok {
		return s
	}
	if freeTextFields[key] {
		return SeverityLow
	}
	return SeverityMedium
}

func severityWeight(s string) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 5
	case SeverityCritical:
		return 10
	}
	return 0
}

func impactWeight(kind string) int {
	switch kind {
	case ImpactInfo:
		return 1
	case ImpactWarning:
		return 5
	case ImpactBreaking:
		return 15
	}
	return 0
}

// isTimestampField matches the naming convention of date and audit columns.
func isTimestampField(key string) bool {
	return strings.HasSuffix(key, "Date") || strings.HasSuffix(key, "At")
}

func isVersionField(key string) bool {
	return key == "version" || strings.Contains(key, "Version")
}
