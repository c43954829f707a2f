package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
	"github.com/dillipm021073/arc-studio-sub001/internal/graph"
	"github.com/dillipm021073/arc-studio-sub001/internal/impact"
)

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dependency-graph",
		Method:      http.MethodGet,
		Path:        "/artifacts/{type}/{artifact_id}/dependency-graph",
		Summary:     "Dependency graph around an artifact",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Type       string `path:"type"`
		ArtifactID int64  `path:"artifact_id"`
		MaxDepth   int    `query:"max_depth" minimum:"0" maximum:"10"`
	}) (*bodyOutput[graph.Graph], error) {
		t, typeErr := parseType(input.Type)
		if typeErr != nil {
			return nil, typeErr
		}
		g, err := e.BuildDependencyGraph(ctx, t, input.ArtifactID, input.MaxDepth)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(g)
	})

	huma.Register(api, huma.Operation{
		OperationID: "impact-report",
		Method:      http.MethodGet,
		Path:        "/artifacts/{type}/{artifact_id}/impact-report",
		Summary:     "What a change to the artifact would affect",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Type       string `path:"type"`
		ArtifactID int64  `path:"artifact_id"`
		ChangeType string `query:"change_type" enum:"create,update,delete"`
	}) (*bodyOutput[graph.Report], error) {
		t, typeErr := parseType(input.Type)
		if typeErr != nil {
			return nil, typeErr
		}
		r, err := e.GetImpactReport(ctx, t, input.ArtifactID, input.ChangeType)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(r)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-dependency",
		Method:        http.MethodPost,
		Path:          "/dependencies",
		Summary:       "Record a dependency between two baselines",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateDependencyRequest `json:"body"`
	}) (*bodyOutput[domain.VersionDependency], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		from, typeErr := parseType(input.Body.FromArtifactType)
		if typeErr != nil {
			return nil, typeErr
		}
		to, typeErr := parseType(input.Body.ToArtifactType)
		if typeErr != nil {
			return nil, typeErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDependency(ctx, engine.DependencyOptions{
			FromType:    from,
			FromID:      input.Body.FromArtifactID,
			ToType:      to,
			ToID:        input.Body.ToArtifactID,
			Type:        input.Body.DependencyType,
			Strength:    input.Body.Strength,
			Description: input.Body.Description,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(d)
	})

	huma.Register(api, huma.Operation{
		OperationID: "checkout-impact",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/checkout-impact",
		Summary:     "Co-checkouts a checkout would require",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InitiativeID string      `path:"id"`
		Body         ArtifactRef `json:"body"`
	}) (*bodyOutput[impact.Analysis], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		t, typeErr := parseType(input.Body.ArtifactType)
		if typeErr != nil {
			return nil, typeErr
		}
		a, err := e.AnalyzeCheckoutImpact(ctx, t, input.Body.ArtifactID, input.InitiativeID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-checkout",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/bulk-checkout",
		Summary:     "Check out every required co-checkout",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InitiativeID string              `path:"id"`
		Body         BulkCheckoutRequest `json:"body"`
	}) (*bodyOutput[engine.BulkResult], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var a impact.Analysis
		if input.Body.ImpactAnalysis != nil {
			a = *input.Body.ImpactAnalysis
		} else {
			t, typeErr := parseType(input.Body.ArtifactType)
			if typeErr != nil {
				return nil, typeErr
			}
			var err error
			if a, err = e.AnalyzeCheckoutImpact(ctx, t, input.Body.ArtifactID, input.InitiativeID); err != nil {
				return nil, handleError(err)
			}
		}
		res, err := e.PerformBulkCheckout(ctx, a, input.InitiativeID, actorID, input.Body.AutoApprove)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res)
	})
}
