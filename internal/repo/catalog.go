package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

// CatalogRef identifies a production catalog row.
type CatalogRef struct {
	ArtifactType domain.ArtifactType
	ID           int64
	Name         string
}

// InterfaceLink is an interface with the applications on either end.
type InterfaceLink struct {
	ID         int64
	IMLNumber  string
	ProviderID *int64
	ConsumerID *int64
}

type InternalActivityLink struct {
	ID                int64
	Name              string
	ApplicationID     *int64
	BusinessProcessID *int64
}

type TechnicalProcessLink struct {
	ID            int64
	Name          string
	ApplicationID *int64
}

var catalogTables = map[domain.ArtifactType]struct{ table, name string }{
	domain.ArtifactApplication:      {"applications", "name"},
	domain.ArtifactInterface:        {"interfaces", "iml_number"},
	domain.ArtifactBusinessProcess:  {"business_processes", "business_process"},
	domain.ArtifactInternalProcess:  {"internal_activities", "activity_name"},
	domain.ArtifactTechnicalProcess: {"technical_processes", "name"},
}

func catalogTable(t domain.ArtifactType) (string, string, error) {
	tbl, ok := catalogTables[t]
	if !ok {
		return "", "", fmt.Errorf("invalid artifact type %q", t)
	}
	return tbl.table, tbl.name, nil
}

// UpsertCatalog writes a payload into its production table, keeping the
// relation columns and join tables in step with the payload.
func (r Repo) UpsertCatalog(ctx context.Context, tx *sql.Tx, p domain.Payload) error {
	data, err := domain.EncodePayload(p)
	if err != nil {
		return err
	}
	q := r.q(tx)
	switch v := p.(type) {
	case domain.Application:
		_, err = q.ExecContext(ctx, `INSERT INTO applications(id,name,status,data) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, status=excluded.status, data=excluded.data`, v.ID, v.Name, nullable(v.Status), string(data))
		return err
	case domain.Interface:
		_, err = q.ExecContext(ctx, `INSERT INTO interfaces(id,iml_number,provider_application_id,consumer_application_id,status,data) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET iml_number=excluded.iml_number, provider_application_id=excluded.provider_application_id,
consumer_application_id=excluded.consumer_application_id, status=excluded.status, data=excluded.data`,
			v.ID, v.IMLNumber, nullableInt64Ptr(v.ProviderApplicationID), nullableInt64Ptr(v.ConsumerApplicationID), nullable(v.Status), string(data))
		return err
	case domain.BusinessProcess:
		if _, err = q.ExecContext(ctx, `INSERT INTO business_processes(id,business_process,status,data) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET business_process=excluded.business_process, status=excluded.status, data=excluded.data`, v.ID, v.Name, nullable(v.Status), string(data)); err != nil {
			return err
		}
		if _, err = q.ExecContext(ctx, `DELETE FROM business_process_interfaces WHERE business_process_id=?`, v.ID); err != nil {
			return err
		}
		for i, ifaceID := range v.InterfaceIDs {
			if _, err = q.ExecContext(ctx, `INSERT OR IGNORE INTO business_process_interfaces(business_process_id,interface_id,sequence_number) VALUES (?,?,?)`, v.ID, ifaceID, i+1); err != nil {
				return err
			}
		}
		return nil
	case domain.InternalActivity:
		_, err = q.ExecContext(ctx, `INSERT INTO internal_activities(id,application_id,activity_name,business_process_id,data) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET application_id=excluded.application_id, activity_name=excluded.activity_name,
business_process_id=excluded.business_process_id, data=excluded.data`,
			v.ID, nullableInt64Ptr(v.ApplicationID), v.Name, nullableInt64Ptr(v.BusinessProcessID), string(data))
		return err
	case domain.TechnicalProcess:
		if _, err = q.ExecContext(ctx, `INSERT INTO technical_processes(id,name,application_id,status,data) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, application_id=excluded.application_id, status=excluded.status, data=excluded.data`,
			v.ID, v.Name, nullableInt64Ptr(v.ApplicationID), nullable(v.Status), string(data)); err != nil {
			return err
		}
		if _, err = q.ExecContext(ctx, `DELETE FROM technical_process_interfaces WHERE technical_process_id=?`, v.ID); err != nil {
			return err
		}
		for _, ifaceID := range v.InterfaceIDs {
			if _, err = q.ExecContext(ctx, `INSERT OR IGNORE INTO technical_process_interfaces(technical_process_id,interface_id) VALUES (?,?)`, v.ID, ifaceID); err != nil {
				return err
			}
		}
		if _, err = q.ExecContext(ctx, `DELETE FROM technical_process_internal_activities WHERE technical_process_id=?`, v.ID); err != nil {
			return err
		}
		for _, iaID := range v.InternalActivityIDs {
			if _, err = q.ExecContext(ctx, `INSERT OR IGNORE INTO technical_process_internal_activities(technical_process_id,internal_activity_id) VALUES (?,?)`, v.ID, iaID); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported payload %T", p)
}

// GetCatalogPayload reads the production row of an artifact.
func (r Repo) GetCatalogPayload(ctx context.Context, tx *sql.Tx, t domain.ArtifactType, id int64) (domain.Payload, error) {
	table, _, err := catalogTable(t)
	if err != nil {
		return nil, err
	}
	var data string
	err = r.q(tx).QueryRowContext(ctx, `SELECT data FROM `+table+` WHERE id=?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return domain.DecodePayload(t, []byte(data))
}

func (r Repo) ArtifactName(ctx context.Context, t domain.ArtifactType, id int64) (string, error) {
	table, col, err := catalogTable(t)
	if err != nil {
		return "", err
	}
	var name string
	err = r.DB.QueryRowContext(ctx, `SELECT `+col+` FROM `+table+` WHERE id=?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return name, err
}

func (r Repo) ListCatalog(ctx context.Context, t domain.ArtifactType) ([]CatalogRef, error) {
	table, col, err := catalogTable(t)
	if err != nil {
		return nil, err
	}
	return r.queryRefs(ctx, t, `SELECT id,`+col+` FROM `+table+` ORDER BY id`)
}

func (r Repo) queryRefs(ctx context.Context, t domain.ArtifactType, query string, args ...any) ([]CatalogRef, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CatalogRef
	for rows.Next() {
		ref := CatalogRef{ArtifactType: t}
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		res = append(res, ref)
	}
	return res, rows.Err()
}

func (r Repo) queryInterfaceLinks(ctx context.Context, query string, args ...any) ([]InterfaceLink, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []InterfaceLink
	for rows.Next() {
		l, err := scanInterfaceLink(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func scanInterfaceLink(s scanner) (InterfaceLink, error) {
	var l InterfaceLink
	var provider, consumer sql.NullInt64
	if err := s.Scan(&l.ID, &l.IMLNumber, &provider, &consumer); err != nil {
		if err == sql.ErrNoRows {
			return l, ErrNotFound
		}
		return l, err
	}
	if provider.Valid {
		v := provider.Int64
		l.ProviderID = &v
	}
	if consumer.Valid {
		v := consumer.Int64
		l.ConsumerID = &v
	}
	return l, nil
}

const interfaceLinkColumns = `i.id,i.iml_number,i.provider_application_id,i.consumer_application_id`

func (r Repo) GetInterfaceLink(ctx context.Context, id int64) (InterfaceLink, error) {
	return scanInterfaceLink(r.DB.QueryRowContext(ctx, `SELECT `+interfaceLinkColumns+` FROM interfaces i WHERE i.id=?`, id))
}

// ApplicationInterfaces lists interfaces where the application is provider or
// consumer.
func (r Repo) ApplicationInterfaces(ctx context.Context, appID int64) ([]InterfaceLink, error) {
	return r.queryInterfaceLinks(ctx, `SELECT `+interfaceLinkColumns+` FROM interfaces i WHERE i.provider_application_id=? OR i.consumer_application_id=? ORDER BY i.id`, appID, appID)
}

// BusinessProcessInterfaces lists the interfaces a business process sequences.
func (r Repo) BusinessProcessInterfaces(ctx context.Context, bpID int64) ([]InterfaceLink, error) {
	return r.queryInterfaceLinks(ctx, `SELECT `+interfaceLinkColumns+` FROM business_process_interfaces b JOIN interfaces i ON i.id=b.interface_id
WHERE b.business_process_id=? ORDER BY b.sequence_number, i.id`, bpID)
}

func (r Repo) TechnicalProcessInterfaces(ctx context.Context, tpID int64) ([]InterfaceLink, error) {
	return r.queryInterfaceLinks(ctx, `SELECT `+interfaceLinkColumns+` FROM technical_process_interfaces t JOIN interfaces i ON i.id=t.interface_id
WHERE t.technical_process_id=? ORDER BY i.id`, tpID)
}

// BusinessProcessesForInterfaces lists distinct business processes using any
// of the interfaces.
func (r Repo) BusinessProcessesForInterfaces(ctx context.Context, ifaceIDs []int64) ([]CatalogRef, error) {
	if len(ifaceIDs) == 0 {
		return nil, nil
	}
	return r.queryRefs(ctx, domain.ArtifactBusinessProcess, `SELECT DISTINCT bp.id,bp.business_process FROM business_process_interfaces b JOIN business_processes bp ON bp.id=b.business_process_id
WHERE b.interface_id IN (`+placeholders(len(ifaceIDs))+`) ORDER BY bp.id`, int64Args(ifaceIDs)...)
}

func (r Repo) ApplicationInternalActivities(ctx context.Context, appID int64) ([]CatalogRef, error) {
	return r.queryRefs(ctx, domain.ArtifactInternalProcess, `SELECT id,activity_name FROM internal_activities WHERE application_id=? ORDER BY id`, appID)
}

func (r Repo) ApplicationTechnicalProcesses(ctx context.Context, appID int64) ([]CatalogRef, error) {
	return r.queryRefs(ctx, domain.ArtifactTechnicalProcess, `SELECT id,name FROM technical_processes WHERE application_id=? ORDER BY id`, appID)
}

func (r Repo) TechnicalProcessesForInterface(ctx context.Context, ifaceID int64) ([]CatalogRef, error) {
	return r.queryRefs(ctx, domain.ArtifactTechnicalProcess, `SELECT tp.id,tp.name FROM technical_process_interfaces t JOIN technical_processes tp ON tp.id=t.technical_process_id
WHERE t.interface_id=? ORDER BY tp.id`, ifaceID)
}

func (r Repo) TechnicalProcessesForInternalActivity(ctx context.Context, iaID int64) ([]CatalogRef, error) {
	return r.queryRefs(ctx, domain.ArtifactTechnicalProcess, `SELECT tp.id,tp.name FROM technical_process_internal_activities t JOIN technical_processes tp ON tp.id=t.technical_process_id
WHERE t.internal_activity_id=? ORDER BY tp.id`, iaID)
}

func (r Repo) TechnicalProcessInternalActivities(ctx context.Context, tpID int64) ([]CatalogRef, error) {
	return r.queryRefs(ctx, domain.ArtifactInternalProcess, `SELECT ia.id,ia.activity_name FROM technical_process_internal_activities t JOIN internal_activities ia ON ia.id=t.internal_activity_id
WHERE t.technical_process_id=? ORDER BY ia.id`, tpID)
}

func (r Repo) GetInternalActivityLink(ctx context.Context, id int64) (InternalActivityLink, error) {
	var l InternalActivityLink
	var app, bp sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,activity_name,application_id,business_process_id FROM internal_activities WHERE id=?`, id).
		Scan(&l.ID, &l.Name, &app, &bp)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if app.Valid {
		v := app.Int64
		l.ApplicationID = &v
	}
	if bp.Valid {
		v := bp.Int64
		l.BusinessProcessID = &v
	}
	return l, nil
}

func (r Repo) GetTechnicalProcessLink(ctx context.Context, id int64) (TechnicalProcessLink, error) {
	var l TechnicalProcessLink
	var app sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,application_id FROM technical_processes WHERE id=?`, id).Scan(&l.ID, &l.Name, &app)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if app.Valid {
		v := app.Int64
		l.ApplicationID = &v
	}
	return l, nil
}
