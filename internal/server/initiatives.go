package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
)

type bodyOutput[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) (*bodyOutput[T], error) {
	return &bodyOutput[T]{Body: v}, nil
}

func registerInitiatives(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-initiative",
		Method:        http.MethodPost,
		Path:          "/initiatives",
		Summary:       "Create initiative",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateInitiativeRequest `json:"body"`
	}) (*bodyOutput[domain.Initiative], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.CreateInitiative(ctx, engine.InitiativeCreateOptions{
			Name:                  input.Body.Name,
			Description:           input.Body.Description,
			BusinessJustification: input.Body.BusinessJustification,
			Priority:              input.Body.Priority,
			TargetCompletionDate:  input.Body.TargetCompletionDate,
			ActorID:               actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(in)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-initiatives",
		Method:      http.MethodGet,
		Path:        "/initiatives",
		Summary:     "List initiatives",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"draft,active,completed,cancelled"`
	}) (*bodyOutput[[]domain.Initiative], error) {
		items, err := e.ListInitiatives(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-initiative",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}",
		Summary:     "Get initiative with participants",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InitiativeID string `path:"id"`
	}) (*bodyOutput[InitiativeDetail], error) {
		in, err := e.GetInitiative(ctx, input.InitiativeID)
		if err != nil {
			return nil, handleError(err)
		}
		parts, err := e.ListParticipants(ctx, in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(InitiativeDetail{Initiative: in, Participants: nonNilSlice(parts)})
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-initiative",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/cancel",
		Summary:     "Cancel initiative and discard its work",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		InitiativeID string `path:"id"`
		Force        bool   `query:"force"`
	}) (*bodyOutput[domain.Initiative], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		force, authErr := forceFromContext(ctx, input.Force)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.CancelInitiative(ctx, input.InitiativeID, actorID, force)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(in)
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-participant",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/participants",
		Summary:     "Add or re-role a participant",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InitiativeID string                `path:"id"`
		Force        bool                  `query:"force"`
		Body         AddParticipantRequest `json:"body"`
	}) (*bodyOutput[domain.Participant], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Body.UserID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		force, authErr := forceFromContext(ctx, input.Force)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddParticipant(ctx, input.InitiativeID, input.Body.UserID, input.Body.Role, actorID, force)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p)
	})

	huma.Register(api, huma.Operation{
		OperationID: "transfer-ownership",
		Method:      http.MethodPost,
		Path:        "/initiatives/{id}/transfer-ownership",
		Summary:     "Hand the lead role to another user",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InitiativeID string                   `path:"id"`
		Force        bool                     `query:"force"`
		Body         TransferOwnershipRequest `json:"body"`
	}) (*bodyOutput[InitiativeDetail], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Body.NewOwnerID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "new_owner_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		force, authErr := forceFromContext(ctx, input.Force)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.TransferOwnership(ctx, input.InitiativeID, input.Body.NewOwnerID, actorID, force); err != nil {
			return nil, handleError(err)
		}
		in, err := e.GetInitiative(ctx, input.InitiativeID)
		if err != nil {
			return nil, handleError(err)
		}
		parts, err := e.ListParticipants(ctx, in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(InitiativeDetail{Initiative: in, Participants: nonNilSlice(parts)})
	})
}
