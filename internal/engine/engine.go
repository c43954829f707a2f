package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dillipm021073/arc-studio-sub001/internal/config"
	"github.com/dillipm021073/arc-studio-sub001/internal/db"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/events"
	"github.com/dillipm021073/arc-studio-sub001/internal/graph"
	"github.com/dillipm021073/arc-studio-sub001/internal/impact"
	"github.com/dillipm021073/arc-studio-sub001/internal/logging"
	"github.com/dillipm021073/arc-studio-sub001/internal/metrics"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

// SystemActor is recorded on events the engine writes on its own behalf.
const SystemActor = "system"

const timeLayout = time.RFC3339

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Auth    auth.Service
	Config  *config.Config
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Graphs  *graph.Cache
	Now     func() time.Time
}

func New(conn *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: conn}
	e := Engine{
		DB:     conn,
		Repo:   r,
		Events: events.Writer{DB: conn},
		Auth:   auth.Service{Repo: r},
		Config: cfg,
		Logger: logging.Discard(),
		Now:    time.Now,
	}
	if cfg.Graph.CacheSize > 0 {
		if c, err := graph.NewCache(cfg.Graph.CacheSize); err == nil {
			e.Graphs = c
		}
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(timeLayout)
}

func (e Engine) log() logrus.FieldLogger {
	return logging.OrDiscard(e.Logger)
}

func (e Engine) lockTTL() time.Duration {
	if e.Config != nil && e.Config.Locks.TTL > 0 {
		return e.Config.Locks.TTL
	}
	return 24 * time.Hour
}

// inTx runs fn in a write transaction, retrying the whole unit while SQLite
// reports contention. fn must not touch the pool directly.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.Retry(ctx, func() error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (e Engine) cascader() impact.Cascader {
	return impact.Cascader{Repo: e.Repo}
}

// ensureBaseline returns the artifact's baseline, materializing version 1
// from the production catalog the first time the artifact is touched.
func (e Engine) ensureBaseline(ctx context.Context, tx *sql.Tx, t domain.ArtifactType, id int64, actorID string) (domain.ArtifactVersion, error) {
	base, err := e.Repo.GetBaseline(ctx, tx, t, id)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return base, err
	}
	payload, err := e.Repo.GetCatalogPayload(ctx, tx, t, id)
	if err != nil {
		return base, fmt.Errorf("%s %d: %w", t, id, err)
	}
	now := e.stamp()
	base = domain.ArtifactVersion{
		ArtifactType:  t,
		ArtifactID:    id,
		VersionNumber: 1,
		IsBaseline:    true,
		BaselineDate:  now,
		BaselinedBy:   actorID,
		Data:          payload,
		ChangeType:    domain.ChangeCreate,
		ChangeReason:  "Initial baseline from production data",
		CreatedBy:     actorID,
		CreatedAt:     now,
	}
	base.ID, err = e.Repo.InsertVersion(ctx, tx, base)
	if err != nil {
		return base, fmt.Errorf("materialize baseline: %w", err)
	}
	return base, nil
}

func (e Engine) activeInitiative(ctx context.Context, tx *sql.Tx, id string) (domain.Initiative, error) {
	in, err := e.Repo.GetInitiative(ctx, tx, id)
	if err != nil {
		return in, fmt.Errorf("initiative %s: %w", id, err)
	}
	if in.Status != domain.InitiativeActive {
		return in, preconditionf("initiative %s is %s", id, in.Status)
	}
	return in, nil
}

func artifactEntity(t domain.ArtifactType, id int64) string {
	return fmt.Sprintf("%s/%d", t, id)
}

func ptr[T any](v T) *T {
	return &v
}
