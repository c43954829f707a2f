package engine

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/impact"
)

// AnalyzeCheckoutImpact computes the co-checkouts a checkout of (t, id) for
// the initiative requires.
func (e Engine) AnalyzeCheckoutImpact(ctx context.Context, t domain.ArtifactType, artifactID int64, initiativeID string) (impact.Analysis, error) {
	if _, err := e.GetInitiative(ctx, initiativeID); err != nil {
		return impact.Analysis{}, err
	}
	return e.cascader().Analyze(ctx, t, artifactID, initiativeID)
}

type BulkFailure struct {
	Artifact string `json:"artifact"`
	Error    string `json:"error"`
}

type BulkResult struct {
	Successful int           `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// PerformBulkCheckout checks out every required co-checkout independently.
// Artifacts touched by another initiative's open change request are only
// attempted when autoApprove is set. Failures are collected, not returned.
func (e Engine) PerformBulkCheckout(ctx context.Context, a impact.Analysis, initiativeID, actorID string, autoApprove bool) (BulkResult, error) {
	res := BulkResult{Failed: []BulkFailure{}}
	var errs *multierror.Error
	for _, t := range domain.ArtifactTypes {
		for _, item := range a.RequiredCheckouts.Of(t) {
			if t == a.PrimaryArtifact.ArtifactType && item.ID == a.PrimaryArtifact.ID {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			label := fmt.Sprintf("%s: %s", t, item.Name)
			var err error
			if cr, touched := a.Touched(t, item.ID); touched && !autoApprove {
				err = fmt.Errorf("pending approval: %s is changed by change request %d (%s) of initiative %s", item.Name, cr.ChangeRequestID, cr.Title, orNone(cr.InitiativeID))
			} else {
				_, err = e.Checkout(ctx, t, item.ID, initiativeID, actorID)
			}
			if err != nil {
				res.Failed = append(res.Failed, BulkFailure{Artifact: label, Error: err.Error()})
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", label, err))
				e.Metrics.BulkItem("failed")
				continue
			}
			res.Successful++
			e.Metrics.BulkItem("ok")
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		e.log().WithError(err).WithFields(logrus.Fields{
			"initiative": initiativeID,
			"primary":    artifactEntity(a.PrimaryArtifact.ArtifactType, a.PrimaryArtifact.ID),
			"failed":     len(res.Failed),
			"successful": res.Successful,
		}).Warn("bulk checkout finished with failures")
	}
	return res, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
