package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
	"github.com/dillipm021073/arc-studio-sub001/internal/graph"
)

var (
	dependencyTypes     = []string{"requires", "impacts", "related_to", "consumes", "provides"}
	dependencyStrengths = []string{graph.StrengthStrong, graph.StrengthWeak, graph.StrengthOptional}
)

// DependencyOptions are parameters for recording a dependency between two
// artifacts' current baselines.
type DependencyOptions struct {
	FromType    domain.ArtifactType
	FromID      int64
	ToType      domain.ArtifactType
	ToID        int64
	Type        string
	Strength    string
	Description string
	ActorID     string
}

func (e Engine) CreateDependency(ctx context.Context, opts DependencyOptions) (domain.VersionDependency, error) {
	if opts.Strength == "" {
		opts.Strength = graph.StrengthStrong
	}
	if !slices.Contains(dependencyTypes, opts.Type) {
		return domain.VersionDependency{}, fmt.Errorf("invalid dependency type %q", opts.Type)
	}
	if !slices.Contains(dependencyStrengths, opts.Strength) {
		return domain.VersionDependency{}, fmt.Errorf("invalid dependency strength %q", opts.Strength)
	}
	if opts.FromType == opts.ToType && opts.FromID == opts.ToID {
		return domain.VersionDependency{}, errors.New("an artifact cannot depend on itself")
	}
	var d domain.VersionDependency
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Auth.EnsureActor(ctx, tx, opts.ActorID); err != nil {
			return err
		}
		from, err := e.ensureBaseline(ctx, tx, opts.FromType, opts.FromID, opts.ActorID)
		if err != nil {
			return err
		}
		to, err := e.ensureBaseline(ctx, tx, opts.ToType, opts.ToID, opts.ActorID)
		if err != nil {
			return err
		}
		d = domain.VersionDependency{
			FromVersionID: from.ID,
			ToVersionID:   to.ID,
			Type:          opts.Type,
			Strength:      opts.Strength,
			Description:   opts.Description,
			CreatedBy:     opts.ActorID,
			CreatedAt:     e.stamp(),
		}
		if d.ID, err = e.Repo.InsertDependency(ctx, tx, d); err != nil {
			return fmt.Errorf("insert dependency: %w", err)
		}
		return e.Events.Append(ctx, tx, events.DependencyCreated, "", "dependency", fmt.Sprint(d.ID), opts.ActorID, events.EventPayload{
			"from":     artifactEntity(opts.FromType, opts.FromID),
			"to":       artifactEntity(opts.ToType, opts.ToID),
			"type":     d.Type,
			"strength": d.Strength,
		})
	})
	if err != nil {
		return domain.VersionDependency{}, err
	}
	return d, nil
}

func (e Engine) maxDepth(requested int) int {
	if requested > 0 {
		return requested
	}
	if e.Config != nil && e.Config.Graph.MaxDepth > 0 {
		return e.Config.Graph.MaxDepth
	}
	return graph.DefaultMaxDepth
}

// BuildDependencyGraph builds the graph around an artifact. Results are
// cached until the next write to the store.
func (e Engine) BuildDependencyGraph(ctx context.Context, t domain.ArtifactType, artifactID int64, maxDepth int) (graph.Graph, error) {
	rev, err := e.Repo.LatestEventID(ctx, "")
	if err != nil {
		return graph.Graph{}, err
	}
	key := graph.CacheKey{ArtifactType: t, ArtifactID: artifactID, MaxDepth: e.maxDepth(maxDepth), Revision: rev}
	if g, ok := e.Graphs.Get(key); ok {
		return g, nil
	}
	g, err := graph.Build(ctx, graph.CatalogSource{Repo: e.Repo}, t, artifactID, key.MaxDepth)
	if err != nil {
		return graph.Graph{}, fmt.Errorf("dependency graph of %s %d: %w", t, artifactID, err)
	}
	e.Graphs.Add(key, g)
	return g, nil
}

// GetImpactReport summarizes what a change to the artifact would affect.
func (e Engine) GetImpactReport(ctx context.Context, t domain.ArtifactType, artifactID int64, changeType string) (graph.Report, error) {
	if changeType == "" {
		changeType = domain.ChangeUpdate
	}
	g, err := e.BuildDependencyGraph(ctx, t, artifactID, 0)
	if err != nil {
		return graph.Report{}, err
	}
	return graph.NewReport(g, changeType), nil
}
