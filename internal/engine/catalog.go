package engine

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
)

// Catalog is the production data file read by ImportCatalog.
type Catalog struct {
	Applications       []domain.Application      `yaml:"applications"`
	Interfaces         []domain.Interface        `yaml:"interfaces"`
	BusinessProcesses  []domain.BusinessProcess  `yaml:"business_processes"`
	InternalActivities []domain.InternalActivity `yaml:"internal_activities"`
	TechnicalProcesses []domain.TechnicalProcess `yaml:"technical_processes"`
	ChangeRequests     []CatalogChangeRequest    `yaml:"change_requests"`
}

// CatalogChangeRequest is a change request and the artifacts it touches.
type CatalogChangeRequest struct {
	domain.ChangeRequest `yaml:",inline"`
	Applications         []int64 `yaml:"applications"`
	Interfaces           []int64 `yaml:"interfaces"`
	InternalActivities   []int64 `yaml:"internal_activities"`
	TechnicalProcesses   []int64 `yaml:"technical_processes"`
}

// ParseCatalog decodes catalog YAML, rejecting unknown keys.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	return c, nil
}

func (c Catalog) payloads() []domain.Payload {
	var out []domain.Payload
	for _, a := range c.Applications {
		out = append(out, a)
	}
	for _, i := range c.Interfaces {
		out = append(out, i)
	}
	for _, b := range c.BusinessProcesses {
		out = append(out, b)
	}
	for _, a := range c.InternalActivities {
		out = append(out, a)
	}
	for _, t := range c.TechnicalProcesses {
		out = append(out, t)
	}
	return out
}

// ImportResult counts what ImportCatalog wrote.
type ImportResult struct {
	Artifacts      int `json:"artifacts"`
	ChangeRequests int `json:"change_requests"`
}

// ImportCatalog upserts production rows and change requests. Artifacts are
// written in dependency order so relation columns resolve. Existing baselines
// are left alone; the catalog only seeds artifacts not yet versioned.
func (e Engine) ImportCatalog(ctx context.Context, c Catalog, actorID string) (ImportResult, error) {
	var res ImportResult
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		res = ImportResult{}
		if err := e.Auth.EnsureActor(ctx, tx, actorID); err != nil {
			return err
		}
		for _, p := range c.payloads() {
			if p.Key() <= 0 {
				return fmt.Errorf("%s %q: id must be positive", p.Type(), p.DisplayName())
			}
			if err := e.Repo.UpsertCatalog(ctx, tx, p); err != nil {
				return fmt.Errorf("import %s %d: %w", p.Type(), p.Key(), err)
			}
			res.Artifacts++
		}
		for _, cr := range c.ChangeRequests {
			if err := e.Repo.UpsertChangeRequest(ctx, tx, cr.ChangeRequest); err != nil {
				return fmt.Errorf("import change request %d: %w", cr.ID, err)
			}
			links := map[domain.ArtifactType][]int64{
				domain.ArtifactApplication:      cr.Applications,
				domain.ArtifactInterface:        cr.Interfaces,
				domain.ArtifactInternalProcess:  cr.InternalActivities,
				domain.ArtifactTechnicalProcess: cr.TechnicalProcesses,
			}
			for t, ids := range links {
				for _, id := range ids {
					if err := e.Repo.LinkChangeRequest(ctx, tx, cr.ID, t, id); err != nil {
						return fmt.Errorf("link change request %d to %s %d: %w", cr.ID, t, id, err)
					}
				}
			}
			res.ChangeRequests++
		}
		return e.Events.Append(ctx, tx, events.CatalogImported, "", "catalog", "", actorID, events.EventPayload{
			"artifacts":       res.Artifacts,
			"change_requests": res.ChangeRequests,
		})
	})
	return res, err
}
