package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

// OpenChangeRequestStatuses are the statuses of change requests still in
// flight.
var OpenChangeRequestStatuses = []string{"draft", "submitted", "under_review", "approved", "in_progress"}

// ChangeRequestHit is an open change request touching one artifact.
type ChangeRequestHit struct {
	ChangeRequestID int64
	Title           string
	Status          string
	InitiativeID    string
	ArtifactType    domain.ArtifactType
	ArtifactID      int64
	ArtifactName    string
}

var changeRequestLinks = map[domain.ArtifactType]struct{ table, column string }{
	domain.ArtifactApplication:      {"change_request_applications", "application_id"},
	domain.ArtifactInterface:        {"change_request_interfaces", "interface_id"},
	domain.ArtifactInternalProcess:  {"change_request_internal_activities", "internal_activity_id"},
	domain.ArtifactTechnicalProcess: {"change_request_technical_processes", "technical_process_id"},
}

func (r Repo) UpsertChangeRequest(ctx context.Context, tx *sql.Tx, cr domain.ChangeRequest) error {
	status := cr.Status
	if status == "" {
		status = "draft"
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO change_requests(id,cr_number,title,status,initiative_id) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET cr_number=excluded.cr_number, title=excluded.title, status=excluded.status, initiative_id=excluded.initiative_id`,
		cr.ID, cr.Number, cr.Title, status, nullable(cr.InitiativeID))
	return err
}

// LinkChangeRequest records that a change request touches an artifact.
// Business processes carry no change request link.
func (r Repo) LinkChangeRequest(ctx context.Context, tx *sql.Tx, crID int64, t domain.ArtifactType, artifactID int64) error {
	link, ok := changeRequestLinks[t]
	if !ok {
		return fmt.Errorf("change requests cannot reference %s", t)
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO `+link.table+`(change_request_id,`+link.column+`) VALUES (?,?)`, crID, artifactID)
	return err
}

// OpenChangeRequestsFor returns open change requests outside initiativeID
// (including those with no initiative) that touch any of the artifacts.
func (r Repo) OpenChangeRequestsFor(ctx context.Context, t domain.ArtifactType, ids []int64, initiativeID string) ([]ChangeRequestHit, error) {
	link, ok := changeRequestLinks[t]
	if !ok || len(ids) == 0 {
		return nil, nil
	}
	table, nameCol, err := catalogTable(t)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT cr.id,cr.title,cr.status,COALESCE(cr.initiative_id,''),l.%[2]s,a.%[4]s
FROM %[1]s l
JOIN change_requests cr ON cr.id=l.change_request_id
JOIN %[3]s a ON a.id=l.%[2]s
WHERE l.%[2]s IN (%[5]s)
AND (cr.initiative_id IS NULL OR cr.initiative_id<>?)
AND cr.status IN (%[6]s)
ORDER BY cr.id, l.%[2]s`, link.table, link.column, table, nameCol, placeholders(len(ids)), placeholders(len(OpenChangeRequestStatuses)))
	args := int64Args(ids)
	args = append(args, initiativeID)
	for _, s := range OpenChangeRequestStatuses {
		args = append(args, s)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ChangeRequestHit
	for rows.Next() {
		h := ChangeRequestHit{ArtifactType: t}
		if err := rows.Scan(&h.ChangeRequestID, &h.Title, &h.Status, &h.InitiativeID, &h.ArtifactID, &h.ArtifactName); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
