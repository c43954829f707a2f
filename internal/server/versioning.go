package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
)

func registerVersioning(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "checkout",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/checkout",
		Summary:     "Check out an artifact into the initiative",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusPreconditionFailed,
		},
	}, func(ctx context.Context, input *struct {
		InitiativeID string      `path:"id"`
		Body         ArtifactRef `json:"body"`
	}) (*bodyOutput[domain.ArtifactVersion], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		t, typeErr := parseType(input.Body.ArtifactType)
		if typeErr != nil {
			return nil, typeErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.Checkout(ctx, t, input.Body.ArtifactID, input.InitiativeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(v)
	})

	huma.Register(api, huma.Operation{
		OperationID: "checkin",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/checkin",
		Summary:     "Save changes to a checked-out artifact",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusPreconditionFailed,
		},
	}, func(ctx context.Context, input *struct {
		InitiativeID string         `path:"id"`
		Body         CheckinRequest `json:"body"`
	}) (*bodyOutput[domain.ArtifactVersion], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		if input.Body.Data == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "data is required", nil)
		}
		t, typeErr := parseType(input.Body.ArtifactType)
		if typeErr != nil {
			return nil, typeErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.Checkin(ctx, engine.CheckinOptions{
			ArtifactType: t,
			ArtifactID:   input.Body.ArtifactID,
			InitiativeID: input.InitiativeID,
			ActorID:      actorID,
			Data:         input.Body.Data,
			Reason:       input.Body.ChangeReason,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(v)
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-checkout",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/cancel-checkout",
		Summary:     "Discard working copies and release their locks",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		InitiativeID string                `path:"id"`
		Force        bool                  `query:"force"`
		Body         CancelCheckoutRequest `json:"body"`
	}) (*bodyOutput[CancelCheckoutResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		t, typeErr := parseType(input.Body.ArtifactType)
		if typeErr != nil {
			return nil, typeErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		force, authErr := forceFromContext(ctx, input.Force)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.CancelCheckout(ctx, t, input.Body.ArtifactID, input.InitiativeID, actorID, force)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(CancelCheckoutResponse{Cancelled: n})
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-initiative-versions",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/versions",
		Summary:     "List the initiative's working copies",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InitiativeID string `path:"id"`
	}) (*bodyOutput[[]domain.ArtifactVersion], error) {
		if _, err := e.GetInitiative(ctx, input.InitiativeID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListInitiativeVersions(ctx, input.InitiativeID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items))
	})

	huma.Register(api, huma.Operation{
		OperationID: "baseline-initiative",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/baseline",
		Summary:     "Promote the initiative's working copies to baselines",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusPreconditionFailed,
		},
	}, func(ctx context.Context, input *struct {
		InitiativeID string          `path:"id"`
		Force        bool            `query:"force"`
		Body         BaselineRequest `json:"body,omitempty" required:"false"`
	}) (*bodyOutput[engine.BaselineResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		force, authErr := forceFromContext(ctx, input.Force)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.BaselineInitiative(ctx, input.InitiativeID, actorID, input.Body.Reason, force)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-artifact-versions",
		Method:      http.MethodGet,
		Path:        "/artifacts/{type}/{artifact_id}/versions",
		Summary:     "Version and baseline history of an artifact",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `path:"type"`
		ArtifactID int64  `path:"artifact_id"`
	}) (*bodyOutput[ArtifactVersionsResponse], error) {
		t, typeErr := parseType(input.Type)
		if typeErr != nil {
			return nil, typeErr
		}
		versions, err := e.ListVersions(ctx, t, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		history, err := e.BaselineHistory(ctx, t, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ArtifactVersionsResponse{Versions: nonNilSlice(versions), History: nonNilSlice(history)})
	})
}
