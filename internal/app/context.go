package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dillipm021073/arc-studio-sub001/internal/config"
	"github.com/dillipm021073/arc-studio-sub001/internal/db"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/logging"
	"github.com/dillipm021073/arc-studio-sub001/internal/metrics"
	"github.com/dillipm021073/arc-studio-sub001/internal/migrate"
	"github.com/dillipm021073/arc-studio-sub001/internal/repo"
)

// Options tune how a workspace is opened.
type Options struct {
	// ConfigPath overrides <workspace>/arcstudio.yml.
	ConfigPath string
	// Logger overrides the logger built from the config's log section.
	Logger logrus.FieldLogger
	// Registerer receives the engine metrics. Nil leaves metrics off.
	Registerer prometheus.Registerer
}

// Workspace is an open workspace: its config, database and engine.
type Workspace struct {
	Dir    string
	Config *config.Config
	Engine engine.Engine
	Logger logrus.FieldLogger
	conn   *sql.DB
}

// Open loads the workspace config, opens and migrates the database, and
// builds the engine on top.
func Open(ctx context.Context, dir string, opts Options) (*Workspace, error) {
	cfg, err := loadConfig(dir, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(cfg.Log.Level, cfg.Log.Format)
	}
	if len(applied) > 0 {
		logger.WithField("migrations", applied).Info("applied migrations")
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	if opts.Registerer != nil {
		e.Metrics = metrics.New(opts.Registerer)
	}
	return &Workspace{Dir: dir, Config: cfg, Engine: e, Logger: logger, conn: conn}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

func loadConfig(dir, override string) (*config.Config, error) {
	if strings.TrimSpace(override) != "" {
		return config.FromFile(override)
	}
	return config.LoadOptional(dir)
}

// InitResult describes what Init created.
type InitResult struct {
	Workspace     string   `json:"workspace"`
	ConfigPath    string   `json:"config_path"`
	ConfigCreated bool     `json:"config_created"`
	Database      string   `json:"database"`
	Migrations    []string `json:"migrations"`
	Admin         string   `json:"admin,omitempty"`
}

// Init prepares a workspace: default config file, migrated database and,
// when adminID is set, an admin actor.
func Init(ctx context.Context, dir, adminID string) (InitResult, error) {
	res := InitResult{Workspace: dir, ConfigPath: config.Path(dir), Database: db.Path(dir)}
	if _, err := os.Stat(res.ConfigPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(res.ConfigPath, []byte(config.GenerateDefault()), 0o644); err != nil {
			return res, fmt.Errorf("write config: %w", err)
		}
		res.ConfigCreated = true
	} else if err != nil {
		return res, err
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return res, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return res, err
	}
	defer conn.Close()
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}
	res.Migrations = applied
	if adminID != "" {
		if err := GrantAdmin(ctx, repo.Repo{DB: conn}, adminID); err != nil {
			return res, err
		}
		res.Admin = adminID
	}
	return res, nil
}

// GrantAdmin creates the actor if needed and gives it the admin role.
func GrantAdmin(ctx context.Context, r repo.Repo, actorID string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return errors.New("actor id required")
	}
	a, err := r.GetActor(ctx, nil, actorID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) {
		a = domain.Actor{ID: actorID, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	}
	a.Role = auth.RoleAdmin
	if err := r.UpsertActor(ctx, nil, a); err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}
	return nil
}
