package episode

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

func actorName(a *auth.Actor) *string {
	if a == nil {
		return nil
	}
	return &a.Name
}

func actorRole(a *auth.Actor) *string {
	if a == nil {
		return nil
	}
	return &a.Role
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const epCols = `id, first_name, last_name, name, birth_date, gender, company,
	service, status, registered_at,
	taken_care_by_name, taken_care_by_role,
	notes, original_patient_id, version, updated_at`

func (r *repoPG) Create(ctx context.Context, ep *Episode) error {
	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	ep.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO episode (
			id, first_name, last_name, name, birth_date, gender, company,
			service, status, registered_at,
			taken_care_by_name, taken_care_by_role,
			notes, original_patient_id, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		ep.ID, ep.FirstName, ep.LastName, ep.Name, ep.BirthDate, ep.Gender, ep.Company,
		ep.Service, ep.Status, ep.RegisteredAt,
		actorName(ep.TakenCareBy), actorRole(ep.TakenCareBy),
		ep.Notes, ep.OriginalPatientID, ep.Version,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Episode, error) {
	ep, err := scanEpisode(r.conn(ctx).QueryRow(ctx, `SELECT `+epCols+` FROM episode WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// List returns episode summaries, newest registrations first. Child
// collections are not hydrated; callers needing the full aggregate use
// GetByID.
func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Episode, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM episode`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+epCols+` FROM episode ORDER BY registered_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var eps []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, 0, err
		}
		eps = append(eps, ep)
	}
	return eps, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, ep *Episode, expectedVersion int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE episode SET
			first_name=$3, last_name=$4, name=$5, birth_date=$6, gender=$7, company=$8,
			status=$9, taken_care_by_name=$10, taken_care_by_role=$11, notes=$12,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2`,
		ep.ID, expectedVersion,
		ep.FirstName, ep.LastName, ep.Name, ep.BirthDate, ep.Gender, ep.Company,
		ep.Status, actorName(ep.TakenCareBy), actorRole(ep.TakenCareBy), ep.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current int
		err := r.conn(ctx).QueryRow(ctx, `SELECT version FROM episode WHERE id = $1`, ep.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: episode %s", ErrNotFound, ep.ID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: episode %s is at version %d, not %d", ErrConflict, ep.ID, current, expectedVersion)
	}
	ep.Version = expectedVersion + 1
	return nil
}

func (r *repoPG) AppendModifications(ctx context.Context, id uuid.UUID, recs []ModificationRecord) error {
	for _, rec := range recs {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO modification_history (
				episode_id, position, field, old_value, new_value,
				modified_by_name, modified_by_role, modified_at
			) VALUES (
				$1,
				COALESCE((SELECT MAX(position) + 1 FROM modification_history WHERE episode_id = $1), 0),
				$2, $3, $4, $5, $6, $7
			)`,
			id, rec.Field, rec.OldValue, rec.NewValue,
			rec.ModifiedBy.Name, rec.ModifiedBy.Role, rec.Timestamp,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) AppendLabExams(ctx context.Context, id uuid.UUID, exams []LabExam) error {
	for i := range exams {
		if exams[i].ID == uuid.Nil {
			exams[i].ID = uuid.New()
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO lab_exam (
				id, episode_id, type, requested_by_name, requested_by_role, requested_at, completed
			) VALUES ($1,$2,$3,$4,$5,$6,FALSE)`,
			exams[i].ID, id, exams[i].Type,
			exams[i].RequestedBy.Name, exams[i].RequestedBy.Role, exams[i].RequestedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) CompleteLabExams(ctx context.Context, id uuid.UUID, exams []LabExam) error {
	for _, x := range exams {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE lab_exam SET
				completed = TRUE, results = $3,
				completed_by_name = $4, completed_by_role = $5, completed_at = $6
			WHERE id = $1 AND episode_id = $2 AND completed = FALSE`,
			x.ID, id, x.Results, actorName(x.CompletedBy), actorRole(x.CompletedBy), x.CompletedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: pending lab exam %s", ErrNotFound, x.ID)
		}
	}
	return nil
}

func (r *repoPG) AppendServiceRecord(ctx context.Context, id uuid.UUID, rec ServiceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_record (id, episode_id, service_type, service_data, date)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, id, rec.ServiceType, rec.ServiceData, rec.Date,
	)
	return err
}

func (r *repoPG) UpdateServiceRecord(ctx context.Context, id uuid.UUID, rec ServiceRecord) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_record SET service_data = $3
		WHERE episode_id = $1 AND date = $2`,
		id, rec.Date, rec.ServiceData,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no service record for episode %s dated %s", ErrNotFound, id, rec.Date)
	}
	return nil
}

func (r *repoPG) loadChildren(ctx context.Context, ep *Episode) error {
	if err := r.loadModifications(ctx, ep); err != nil {
		return err
	}
	if err := r.loadLabExams(ctx, ep); err != nil {
		return err
	}
	return r.loadServiceHistory(ctx, ep)
}

func (r *repoPG) loadModifications(ctx context.Context, ep *Episode) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT field, old_value, new_value, modified_by_name, modified_by_role, modified_at
		FROM modification_history WHERE episode_id = $1 ORDER BY position DESC`, ep.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec ModificationRecord
		if err := rows.Scan(&rec.Field, &rec.OldValue, &rec.NewValue,
			&rec.ModifiedBy.Name, &rec.ModifiedBy.Role, &rec.Timestamp); err != nil {
			return err
		}
		ep.ModificationHistory = append(ep.ModificationHistory, rec)
	}
	return rows.Err()
}

func (r *repoPG) loadLabExams(ctx context.Context, ep *Episode) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, type, requested_by_name, requested_by_role, requested_at,
			completed, results, completed_by_name, completed_by_role, completed_at
		FROM lab_exam WHERE episode_id = $1
		ORDER BY completed, CASE WHEN completed THEN NULL ELSE requested_at END ASC, completed_at DESC, id`, ep.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			x         LabExam
			completed bool
			results   *string
			byName    *string
			byRole    *string
		)
		if err := rows.Scan(&x.ID, &x.Type, &x.RequestedBy.Name, &x.RequestedBy.Role, &x.RequestedAt,
			&completed, &results, &byName, &byRole, &x.CompletedAt); err != nil {
			return err
		}
		if results != nil {
			x.Results = *results
		}
		if byName != nil {
			x.CompletedBy = &auth.Actor{Name: *byName, Role: deref(byRole)}
		}
		if completed {
			ep.CompletedLabExams = append(ep.CompletedLabExams, x)
		} else {
			ep.PendingLabExams = append(ep.PendingLabExams, x)
		}
	}
	return rows.Err()
}

func (r *repoPG) loadServiceHistory(ctx context.Context, ep *Episode) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, service_type, service_data, date
		FROM service_record WHERE episode_id = $1 ORDER BY date ASC`, ep.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec ServiceRecord
		if err := rows.Scan(&rec.ID, &rec.ServiceType, &rec.ServiceData, &rec.Date); err != nil {
			return err
		}
		ep.ServiceHistory = append(ep.ServiceHistory, rec)
	}
	return rows.Err()
}

func scanEpisode(row pgx.Row) (*Episode, error) {
	var (
		ep               Episode
		tcbName, tcbRole *string
	)
	err := row.Scan(
		&ep.ID, &ep.FirstName, &ep.LastName, &ep.Name, &ep.BirthDate, &ep.Gender, &ep.Company,
		&ep.Service, &ep.Status, &ep.RegisteredAt,
		&tcbName, &tcbRole,
		&ep.Notes, &ep.OriginalPatientID, &ep.Version, &ep.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: episode", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if tcbName != nil {
		ep.TakenCareBy = &auth.Actor{Name: *tcbName, Role: deref(tcbRole)}
	}
	return &ep, nil
}
