package graph

import (
	"fmt"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

const maxAffected = 50

type AffectedArtifact struct {
	ArtifactType domain.ArtifactType `json:"type"`
	ArtifactID   int64               `json:"id"`
	Name         string              `json:"name"`
	ImpactLevel  string              `json:"impact_level" enum:"low,medium,high,critical"`
	Reason       string              `json:"reason"`
}

type Report struct {
	TotalImpacts      int                `json:"total_impacts"`
	CriticalImpacts   int                `json:"critical_impacts"`
	AffectedArtifacts []AffectedArtifact `json:"affected_artifacts"`
	Recommendations   []string           `json:"recommendations"`
	Graph             Graph              `json:"graph"`
}

// NewReport summarizes a graph as the artifacts a change to its root touches.
func NewReport(g Graph, changeType string) Report {
	r := Report{Graph: g, AffectedArtifacts: []AffectedArtifact{}, Recommendations: []string{}}
	var rootName string
	for _, n := range g.Nodes {
		if n.ID == g.Root {
			rootName = fmt.Sprintf("%s %d", n.ArtifactType, n.ArtifactID)
		}
	}
	interfaces := 0
	for _, n := range g.Nodes {
		if n.ID == g.Root {
			continue
		}
		r.TotalImpacts++
		if g.Impact.RiskLevel == RiskCritical {
			r.CriticalImpacts++
		}
		if n.ArtifactType == domain.ArtifactInterface {
			interfaces++
		}
		if len(r.AffectedArtifacts) < maxAffected {
			r.AffectedArtifacts = append(r.AffectedArtifacts, AffectedArtifact{
				ArtifactType: n.ArtifactType,
				ArtifactID:   n.ArtifactID,
				Name:         n.Name,
				ImpactLevel:  g.Impact.RiskLevel,
				Reason:       fmt.Sprintf("%s on %s", changeType, rootName),
			})
		}
	}

	if r.CriticalImpacts > 0 {
		r.Recommendations = append(r.Recommendations, "Critical impacts detected. Thorough testing required.")
	}
	if r.TotalImpacts > 10 {
		r.Recommendations = append(r.Recommendations, "Large number of dependencies affected. Consider phased rollout.")
	}
	if interfaces > 0 {
		r.Recommendations = append(r.Recommendations, "Interface changes detected. Coordinate with consumer teams.")
	}
	for _, c := range g.Cycles {
		if c.Severity == "error" {
			r.Recommendations = append(r.Recommendations, "Long dependency cycles present. Review before changing the architecture.")
			break
		}
	}
	return r
}
