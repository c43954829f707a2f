package repo

import (
	"context"
	"database/sql"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

// DependencyLink is a recorded dependency seen from one artifact: the
// artifact on the other end plus the edge attributes.
type DependencyLink struct {
	ArtifactType domain.ArtifactType
	ArtifactID   int64
	Type         string
	Strength     string
	Description  string
}

func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, d domain.VersionDependency) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO version_dependencies(from_version_id,to_version_id,dependency_type,dependency_strength,description,created_by,created_at) VALUES (?,?,?,?,?,?,?)`,
		d.FromVersionID, d.ToVersionID, d.Type, d.Strength, nullable(d.Description), d.CreatedBy, d.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CarryDependencies re-points every dependency on oldID at newID. Called when
// a baseline is superseded so recorded edges follow the current snapshot.
func (r Repo) CarryDependencies(ctx context.Context, tx *sql.Tx, oldID, newID int64) error {
	if _, err := r.q(tx).ExecContext(ctx, `UPDATE version_dependencies SET from_version_id=? WHERE from_version_id=?`, newID, oldID); err != nil {
		return err
	}
	_, err := r.q(tx).ExecContext(ctx, `UPDATE version_dependencies SET to_version_id=? WHERE to_version_id=?`, newID, oldID)
	return err
}

// DependenciesFrom lists artifacts the current baseline of (t, id) depends on.
func (r Repo) DependenciesFrom(ctx context.Context, t domain.ArtifactType, artifactID int64) ([]DependencyLink, error) {
	return r.queryLinks(ctx, `SELECT tv.artifact_type,tv.artifact_id,d.dependency_type,d.dependency_strength,COALESCE(d.description,'')
FROM version_dependencies d
JOIN artifact_versions fv ON fv.id=d.from_version_id
JOIN artifact_versions tv ON tv.id=d.to_version_id
WHERE fv.artifact_type=? AND fv.artifact_id=? AND fv.is_baseline=1
ORDER BY d.id`, string(t), artifactID)
}

// DependenciesTo lists artifacts whose current baseline depends on (t, id).
func (r Repo) DependenciesTo(ctx context.Context, t domain.ArtifactType, artifactID int64) ([]DependencyLink, error) {
	return r.queryLinks(ctx, `SELECT fv.artifact_type,fv.artifact_id,d.dependency_type,d.dependency_strength,COALESCE(d.description,'')
FROM version_dependencies d
JOIN artifact_versions fv ON fv.id=d.from_version_id
JOIN artifact_versions tv ON tv.id=d.to_version_id
WHERE tv.artifact_type=? AND tv.artifact_id=? AND tv.is_baseline=1
ORDER BY d.id`, string(t), artifactID)
}

func (r Repo) queryLinks(ctx context.Context, query string, args ...any) ([]DependencyLink, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DependencyLink
	for rows.Next() {
		var l DependencyLink
		var typ string
		if err := rows.Scan(&typ, &l.ArtifactID, &l.Type, &l.Strength, &l.Description); err != nil {
			return nil, err
		}
		l.ArtifactType = domain.ArtifactType(typ)
		res = append(res, l)
	}
	return res, rows.Err()
}
