package graph

import (
	"context"
	"errors"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

// CatalogSource reads nodes from the production catalog and links from the
// catalog relations plus the dependencies recorded against baselines.
type CatalogSource struct {
	Repo repo.Repo
}

func (s CatalogSource) Node(ctx context.Context, t domain.ArtifactType, id int64) (Node, error) {
	p, err := s.Repo.GetCatalogPayload(ctx, nil, t, id)
	if errors.Is(err, repo.ErrNotFound) {
		return Node{}, ErrNodeNotFound
	}
	if err != nil {
		return Node{}, err
	}
	n := Node{
		ID:           NodeID(t, id),
		ArtifactType: t,
		ArtifactID:   id,
		Name:         p.DisplayName(),
		Version:      1,
		Metadata:     metadata(p),
	}
	base, err := s.Repo.GetBaseline(ctx, nil, t, id)
	switch {
	case err == nil:
		n.Version = base.VersionNumber
	case !errors.Is(err, repo.ErrNotFound):
		return Node{}, err
	}
	return n, nil
}

func metadata(p domain.Payload) map[string]any {
	switch a := p.(type) {
	case domain.Application:
		return map[string]any{"status": a.Status, "lob": a.LOB, "criticality": a.Criticality}
	case domain.Interface:
		return map[string]any{"type": a.InterfaceType, "status": a.Status, "middleware": a.Middleware}
	case domain.BusinessProcess:
		return map[string]any{"lob": a.LOB, "processType": a.ProcessType}
	case domain.InternalActivity:
		return map[string]any{"activityType": a.ActivityType, "status": a.Status}
	case domain.TechnicalProcess:
		return map[string]any{"criticality": a.Criticality, "status": a.Status}
	}
	return nil
}

func (s CatalogSource) Links(ctx context.Context, t domain.ArtifactType, id int64) ([]Link, error) {
	links, err := s.structural(ctx, t, id)
	if err != nil {
		return nil, err
	}
	recorded, err := s.Repo.DependenciesFrom(ctx, t, id)
	if err != nil {
		return nil, err
	}
	for _, d := range recorded {
		links = append(links, Link{
			ArtifactType: d.ArtifactType,
			ArtifactID:   d.ArtifactID,
			Type:         d.Type,
			Strength:     d.Strength,
			Description:  d.Description,
		})
	}
	return links, nil
}

func (s CatalogSource) structural(ctx context.Context, t domain.ArtifactType, id int64) ([]Link, error) {
	var links []Link
	switch t {
	case domain.ArtifactApplication:
		ifaces, err := s.Repo.ApplicationInterfaces(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, i := range ifaces {
			if i.ProviderID != nil && *i.ProviderID == id {
				links = append(links, Link{ArtifactType: domain.ArtifactInterface, ArtifactID: i.ID, Type: "provides", Strength: StrengthStrong})
			}
			if i.ConsumerID != nil && *i.ConsumerID == id {
				links = append(links, Link{ArtifactType: domain.ArtifactInterface, ArtifactID: i.ID, Type: "consumes", Strength: StrengthStrong})
			}
		}

	case domain.ArtifactInterface:
		i, err := s.Repo.GetInterfaceLink(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if i.ProviderID != nil {
			links = append(links, Link{ArtifactType: domain.ArtifactApplication, ArtifactID: *i.ProviderID, Type: "requires", Strength: StrengthStrong, Description: "Provider application"})
		}
		if i.ConsumerID != nil {
			links = append(links, Link{ArtifactType: domain.ArtifactApplication, ArtifactID: *i.ConsumerID, Type: "requires", Strength: StrengthStrong, Description: "Consumer application"})
		}
		bps, err := s.Repo.BusinessProcessesForInterfaces(ctx, []int64{id})
		if err != nil {
			return nil, err
		}
		for _, bp := range bps {
			links = append(links, Link{ArtifactType: domain.ArtifactBusinessProcess, ArtifactID: bp.ID, Type: "impacts", Strength: StrengthWeak})
		}

	case domain.ArtifactBusinessProcess:
		ifaces, err := s.Repo.BusinessProcessInterfaces(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, i := range ifaces {
			links = append(links, Link{ArtifactType: domain.ArtifactInterface, ArtifactID: i.ID, Type: "requires", Strength: StrengthStrong})
		}

	case domain.ArtifactInternalProcess:
		ia, err := s.Repo.GetInternalActivityLink(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if ia.ApplicationID != nil {
			links = append(links, Link{ArtifactType: domain.ArtifactApplication, ArtifactID: *ia.ApplicationID, Type: "requires", Strength: StrengthStrong, Description: "Owner application"})
		}
		if ia.BusinessProcessID != nil {
			links = append(links, Link{ArtifactType: domain.ArtifactBusinessProcess, ArtifactID: *ia.BusinessProcessID, Type: "related_to", Strength: StrengthWeak})
		}

	case domain.ArtifactTechnicalProcess:
		tp, err := s.Repo.GetTechnicalProcessLink(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if tp.ApplicationID != nil {
			links = append(links, Link{ArtifactType: domain.ArtifactApplication, ArtifactID: *tp.ApplicationID, Type: "requires", Strength: StrengthStrong, Description: "Owner application"})
		}
		ifaces, err := s.Repo.TechnicalProcessInterfaces(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, i := range ifaces {
			links = append(links, Link{ArtifactType: domain.ArtifactInterface, ArtifactID: i.ID, Type: "consumes", Strength: StrengthStrong})
		}
		activities, err := s.Repo.TechnicalProcessInternalActivities(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, a := range activities {
			links = append(links, Link{ArtifactType: domain.ArtifactInternalProcess, ArtifactID: a.ID, Type: "requires", Strength: StrengthWeak})
		}
	}
	return links, nil
}
