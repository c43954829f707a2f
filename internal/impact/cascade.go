// Package impact works out which artifacts must be checked out together with
// a primary artifact, and which open change requests of other initiatives
// already touch them.
package impact

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

type Primary struct {
	ArtifactType domain.ArtifactType `json:"type"`
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
}

// Item is one required co-checkout.
type Item struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type RequiredCheckouts struct {
	Applications       []Item `json:"applications"`
	Interfaces         []Item `json:"interfaces"`
	BusinessProcesses  []Item `json:"business_processes"`
	InternalActivities []Item `json:"internal_activities"`
	TechnicalProcesses []Item `json:"technical_processes"`
}

func (r *RequiredCheckouts) list(t domain.ArtifactType) *[]Item {
	switch t {
	case domain.ArtifactApplication:
		return &r.Applications
	case domain.ArtifactInterface:
		return &r.Interfaces
	case domain.ArtifactBusinessProcess:
		return &r.BusinessProcesses
	case domain.ArtifactInternalProcess:
		return &r.InternalActivities
	case domain.ArtifactTechnicalProcess:
		return &r.TechnicalProcesses
	}
	return nil
}

// Of returns the required items of one artifact type.
func (r RequiredCheckouts) Of(t domain.ArtifactType) []Item {
	if l := r.list(t); l != nil {
		return *l
	}
	return nil
}

func (r RequiredCheckouts) Total() int {
	n := 0
	for _, t := range domain.ArtifactTypes {
		n += len(r.Of(t))
	}
	return n
}

type CrossInitiativeImpact struct {
	ChangeRequestID int64               `json:"change_request_id"`
	Title           string              `json:"title"`
	Status          string              `json:"status"`
	InitiativeID    string              `json:"initiative_id,omitempty"`
	ConflictType    domain.ArtifactType `json:"conflict_type"`
	ArtifactID      int64               `json:"artifact_id"`
	ArtifactName    string              `json:"artifact_name"`
}

type Summary struct {
	TotalRequiredCheckouts   int    `json:"total_required_checkouts"`
	CrossInitiativeConflicts int    `json:"cross_initiative_conflicts"`
	EstimatedComplexity      string `json:"estimated_complexity"`
}

type Analysis struct {
	PrimaryArtifact        Primary                 `json:"primary_artifact"`
	RequiredCheckouts      RequiredCheckouts       `json:"required_checkouts"`
	CrossInitiativeImpacts []CrossInitiativeImpact `json:"cross_initiative_impacts"`
	RiskLevel              string                  `json:"risk_level" enum:"low,medium,high,critical"`
	Summary                Summary                 `json:"summary"`
}

// Touched reports whether an open change request of another initiative
// touches the artifact, and the first such request.
func (a Analysis) Touched(t domain.ArtifactType, id int64) (CrossInitiativeImpact, bool) {
	for _, c := range a.CrossInitiativeImpacts {
		if c.ConflictType == t && c.ArtifactID == id {
			return c, true
		}
	}
	return CrossInitiativeImpact{}, false
}

// Cascader reads the catalog relations to expand a checkout.
type Cascader struct {
	Repo repo.Repo
}

// Analyze computes the required co-checkouts of (t, id) and the open change
// requests of initiatives other than initiativeID that touch any of them.
func (c Cascader) Analyze(ctx context.Context, t domain.ArtifactType, id int64, initiativeID string) (Analysis, error) {
	a := Analysis{
		PrimaryArtifact:        Primary{ArtifactType: t, ID: id},
		CrossInitiativeImpacts: []CrossInitiativeImpact{},
	}
	name, err := c.Repo.ArtifactName(ctx, t, id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		name = fmt.Sprintf("%s %d", t.Label(), id)
	case err != nil:
		return Analysis{}, err
	}
	a.PrimaryArtifact.Name = name

	r := required{primary: a.PrimaryArtifact, out: &a.RequiredCheckouts}
	switch t {
	case domain.ArtifactApplication:
		err = c.application(ctx, id, &r)
	case domain.ArtifactInterface:
		err = c.iface(ctx, id, &r)
	case domain.ArtifactBusinessProcess:
		err = c.businessProcess(ctx, id, &r)
	case domain.ArtifactInternalProcess:
		err = c.internalActivity(ctx, id, &r)
	case domain.ArtifactTechnicalProcess:
		err = c.technicalProcess(ctx, id, &r)
	default:
		err = fmt.Errorf("invalid artifact type %q", t)
	}
	if err != nil {
		return Analysis{}, err
	}

	hits, err := c.crossInitiative(ctx, a, initiativeID)
	if err != nil {
		return Analysis{}, err
	}
	a.CrossInitiativeImpacts = hits

	total := a.RequiredCheckouts.Total()
	a.RiskLevel = RiskLevel(total, len(hits))
	a.Summary = Summary{
		TotalRequiredCheckouts:   total,
		CrossInitiativeConflicts: len(hits),
		EstimatedComplexity:      Complexity(total),
	}
	return a, nil
}

// required collects items once each and never the primary artifact itself.
type required struct {
	primary Primary
	out     *RequiredCheckouts
}

func (r *required) add(t domain.ArtifactType, id int64, name, reason string) {
	if t == r.primary.ArtifactType && id == r.primary.ID {
		return
	}
	l := r.out.list(t)
	for _, it := range *l {
		if it.ID == id {
			return
		}
	}
	*l = append(*l, Item{ID: id, Name: name, Reason: reason})
}

func (c Cascader) appName(ctx context.Context, id int64) (string, bool, error) {
	name, err := c.Repo.ArtifactName(ctx, domain.ArtifactApplication, id)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	return name, err == nil, err
}

func (c Cascader) application(ctx context.Context, appID int64, r *required) error {
	ifaces, err := c.Repo.ApplicationInterfaces(ctx, appID)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(ifaces))
	for _, i := range ifaces {
		ids = append(ids, i.ID)
		provider := i.ProviderID != nil && *i.ProviderID == appID
		reason := "Consumer application being modified"
		other := i.ProviderID
		if provider {
			reason = "Provider application being modified"
			other = i.ConsumerID
		}
		r.add(domain.ArtifactInterface, i.ID, i.IMLNumber, reason)
		if other == nil || *other == appID {
			continue
		}
		name, ok, err := c.appName(ctx, *other)
		if err != nil {
			return err
		}
		if ok {
			r.add(domain.ArtifactApplication, *other, name, "Connected via interface "+i.IMLNumber)
		}
	}

	activities, err := c.Repo.ApplicationInternalActivities(ctx, appID)
	if err != nil {
		return err
	}
	for _, ia := range activities {
		r.add(domain.ArtifactInternalProcess, ia.ID, ia.Name, "Internal capability of the application")
	}
	processes, err := c.Repo.ApplicationTechnicalProcesses(ctx, appID)
	if err != nil {
		return err
	}
	for _, tp := range processes {
		r.add(domain.ArtifactTechnicalProcess, tp.ID, tp.Name, "Technical process within the application")
	}
	bps, err := c.Repo.BusinessProcessesForInterfaces(ctx, ids)
	if err != nil {
		return err
	}
	for _, bp := range bps {
		r.add(domain.ArtifactBusinessProcess, bp.ID, bp.Name, "Uses interfaces affected by application changes")
	}
	return nil
}

func (c Cascader) iface(ctx context.Context, ifaceID int64, r *required) error {
	link, err := c.Repo.GetInterfaceLink(ctx, ifaceID)
	switch {
	case err == nil:
		for _, end := range []struct {
			id     *int64
			reason string
		}{
			{link.ProviderID, "Provider application for the interface"},
			{link.ConsumerID, "Consumer application for the interface"},
		} {
			if end.id == nil {
				continue
			}
			name, ok, err := c.appName(ctx, *end.id)
			if err != nil {
				return err
			}
			if ok {
				r.add(domain.ArtifactApplication, *end.id, name, end.reason)
			}
		}
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}

	bps, err := c.Repo.BusinessProcessesForInterfaces(ctx, []int64{ifaceID})
	if err != nil {
		return err
	}
	for _, bp := range bps {
		r.add(domain.ArtifactBusinessProcess, bp.ID, bp.Name, "Business process uses this interface")
	}
	tps, err := c.Repo.TechnicalProcessesForInterface(ctx, ifaceID)
	if err != nil {
		return err
	}
	for _, tp := range tps {
		r.add(domain.ArtifactTechnicalProcess, tp.ID, tp.Name, "Technical process uses this interface")
	}
	return nil
}

func (c Cascader) businessProcess(ctx context.Context, bpID int64, r *required) error {
	ifaces, err := c.Repo.BusinessProcessInterfaces(ctx, bpID)
	if err != nil {
		return err
	}
	for _, i := range ifaces {
		r.add(domain.ArtifactInterface, i.ID, i.IMLNumber, "Interface used by the business process")
	}
	for _, i := range ifaces {
		for _, appID := range []*int64{i.ProviderID, i.ConsumerID} {
			if appID == nil {
				continue
			}
			name, ok, err := c.appName(ctx, *appID)
			if err != nil {
				return err
			}
			if ok {
				r.add(domain.ArtifactApplication, *appID, name, "Application involved in business process interfaces")
			}
		}
	}
	return nil
}

func (c Cascader) internalActivity(ctx context.Context, iaID int64, r *required) error {
	link, err := c.Repo.GetInternalActivityLink(ctx, iaID)
	switch {
	case err == nil:
		if link.ApplicationID != nil {
			name, ok, err := c.appName(ctx, *link.ApplicationID)
			if err != nil {
				return err
			}
			if ok {
				r.add(domain.ArtifactApplication, *link.ApplicationID, name, "Owner application of the internal activity")
			}
		}
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}
	tps, err := c.Repo.TechnicalProcessesForInternalActivity(ctx, iaID)
	if err != nil {
		return err
	}
	for _, tp := range tps {
		r.add(domain.ArtifactTechnicalProcess, tp.ID, tp.Name, "Technical process uses this internal activity")
	}
	return nil
}

func (c Cascader) technicalProcess(ctx context.Context, tpID int64, r *required) error {
	link, err := c.Repo.GetTechnicalProcessLink(ctx, tpID)
	switch {
	case err == nil:
		if link.ApplicationID != nil {
			name, ok, err := c.appName(ctx, *link.ApplicationID)
			if err != nil {
				return err
			}
			if ok {
				r.add(domain.ArtifactApplication, *link.ApplicationID, name, "Owner application of the technical process")
			}
		}
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}
	ifaces, err := c.Repo.TechnicalProcessInterfaces(ctx, tpID)
	if err != nil {
		return err
	}
	for _, i := range ifaces {
		r.add(domain.ArtifactInterface, i.ID, i.IMLNumber, "Interface used by the technical process")
	}
	activities, err := c.Repo.TechnicalProcessInternalActivities(ctx, tpID)
	if err != nil {
		return err
	}
	for _, ia := range activities {
		r.add(domain.ArtifactInternalProcess, ia.ID, ia.Name, "Internal activity used by the technical process")
	}
	return nil
}

// crossInitiative queries each artifact kind concurrently. Business processes
// carry no change request links.
func (c Cascader) crossInitiative(ctx context.Context, a Analysis, initiativeID string) ([]CrossInitiativeImpact, error) {
	kinds := []domain.ArtifactType{
		domain.ArtifactApplication,
		domain.ArtifactInterface,
		domain.ArtifactInternalProcess,
		domain.ArtifactTechnicalProcess,
	}
	results := make([][]repo.ChangeRequestHit, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range kinds {
		ids := make([]int64, 0, len(a.RequiredCheckouts.Of(t))+1)
		if a.PrimaryArtifact.ArtifactType == t {
			ids = append(ids, a.PrimaryArtifact.ID)
		}
		for _, it := range a.RequiredCheckouts.Of(t) {
			ids = append(ids, it.ID)
		}
		if len(ids) == 0 {
			continue
		}
		g.Go(func() error {
			hits, err := c.Repo.OpenChangeRequestsFor(gctx, t, ids, initiativeID)
			if err != nil {
				return fmt.Errorf("change requests for %s: %w", t, err)
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []CrossInitiativeImpact{}
	for _, hits := range results {
		for _, h := range hits {
			out = append(out, CrossInitiativeImpact{
				ChangeRequestID: h.ChangeRequestID,
				Title:           h.Title,
				Status:          h.Status,
				InitiativeID:    h.InitiativeID,
				ConflictType:    h.ArtifactType,
				ArtifactID:      h.ArtifactID,
				ArtifactName:    h.ArtifactName,
			})
		}
	}
	return out, nil
}

func RiskLevel(totalCheckouts, crossConflicts int) string {
	switch {
	case crossConflicts > 5 || totalCheckouts > 20:
		return RiskCritical
	case crossConflicts > 2 || totalCheckouts > 10:
		return RiskHigh
	case crossConflicts > 0 || totalCheckouts > 5:
		return RiskMedium
	}
	return RiskLow
}

func Complexity(totalCheckouts int) string {
	switch {
	case totalCheckouts > 15:
		return "Very Complex"
	case totalCheckouts > 10:
		return "Complex"
	case totalCheckouts > 5:
		return "Moderate"
	}
	return "Simple"
}
