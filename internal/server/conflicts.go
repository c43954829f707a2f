package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
)

func registerConflicts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conflicts",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/conflicts",
		Summary:     "List stored conflicts of an initiative",
	}, func(ctx context.Context, input *struct {
		InitiativeID string `path:"id"`
		Status       string `query:"status" enum:"pending,resolved"`
	}) (*bodyOutput[[]domain.VersionConflict], error) {
		items, err := e.ListConflicts(ctx, input.InitiativeID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items))
	})

	huma.Register(api, huma.Operation{
		OperationID: "detect-conflicts",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/detect-conflicts",
		Summary:     "Compare working copies against moved baselines",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InitiativeID string `path:"id"`
	}) (*bodyOutput[[]domain.VersionConflict], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.DetectConflicts(ctx, input.InitiativeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items))
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-conflict",
		Method:      http.MethodPost,
		Path:        "/conflicts/{conflict_id}/resolve",
		Summary:     "Resolve a conflict with a strategy",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusPreconditionFailed,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID int64                  `path:"conflict_id"`
		Body       ResolveConflictRequest `json:"body"`
	}) (*bodyOutput[domain.VersionConflict], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ResolveConflict(ctx, engine.ResolveOptions{
			ConflictID:   input.ConflictID,
			Strategy:     input.Body.Strategy,
			ResolvedData: input.Body.ResolvedData,
			ActorID:      actorID,
			Notes:        input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c)
	})

	huma.Register(api, huma.Operation{
		OperationID: "auto-resolve-conflict",
		Method:      http.MethodPost,
		Path:        "/conflicts/{conflict_id}/auto-resolve",
		Summary:     "Resolve a conflict with the automatic merge",
		Errors: []int{
			http.StatusNotFound,
			http.StatusPreconditionFailed,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID int64 `path:"conflict_id"`
	}) (*bodyOutput[domain.VersionConflict], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AutoResolveConflict(ctx, input.ConflictID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c)
	})

	huma.Register(api, huma.Operation{
		OperationID: "conflict-analysis",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/analysis",
		Summary:     "Conflict details with an automatic merge preview",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID int64 `path:"conflict_id"`
	}) (*bodyOutput[engine.ConflictAnalysis], error) {
		a, err := e.GetConflictAnalysis(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(a)
	})
}

func registerLocks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-locks",
		Method:      http.MethodGet,
		Path:        "/locks",
		Summary:     "List artifact locks",
	}, func(ctx context.Context, input *struct {
		InitiativeID string `query:"initiative_id"`
	}) (*bodyOutput[[]domain.ArtifactLock], error) {
		items, err := e.ListLocks(ctx, input.InitiativeID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items))
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-lock",
		Method:      http.MethodDelete,
		Path:        "/locks/{lock_id}",
		Summary:     "Release a lock, keeping the working copy",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LockID int64 `path:"lock_id"`
		Force  bool  `query:"force"`
	}) (*bodyOutput[domain.ArtifactLock], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		force, authErr := forceFromContext(ctx, input.Force)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.ReleaseLock(ctx, input.LockID, actorID, force)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(l)
	})
}
