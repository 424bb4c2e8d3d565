package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

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

func (r *repoPG) Add(ctx context.Context, a *Activity) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO activity (id, type, episode_id, patient_name, details, actor_name, actor_role, ts, day)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.Type, a.EpisodeID, a.PatientName, a.Details, a.Actor.Name, a.Actor.Role, a.Timestamp, a.Day,
	)
	return err
}

func (r *repoPG) ByDay(ctx context.Context, day string) ([]Activity, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, type, episode_id, patient_name, details, actor_name, actor_role, ts, day
		FROM activity WHERE day = $1 ORDER BY ts DESC, id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Type, &a.EpisodeID, &a.PatientName, &a.Details,
			&a.Actor.Name, &a.Actor.Role, &a.Timestamp, &a.Day); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, day)
	}
	return entries, nil
}

// StatsByDay aggregates in SQL. The FILTER clauses mirror the reducer in
// model.go one branch per type; only registrations feed the patient totals
// and only terminal status changes count as completed services.
func (r *repoPG) StatsByDay(ctx context.Context, day string) (DailyStats, error) {
	stats := DailyStats{Day: day}
	var entries int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE type = 'registration'),
			COUNT(*) FILTER (WHERE type = 'visit'),
			COUNT(*) FILTER (WHERE type = 'consultation'),
			COUNT(*) FILTER (WHERE type = 'emergency'),
			COUNT(*) FILTER (WHERE type = 'lab_exam'),
			COUNT(*) FILTER (WHERE type = 'status_change' AND details ILIKE '%complet%'),
			COUNT(*)
		FROM activity WHERE day = $1`, day).Scan(
		&stats.NewPatients, &stats.Visits, &stats.Consultations,
		&stats.Emergencies, &stats.LabExams, &stats.CompletedServices, &entries,
	)
	stats.TotalPatients = stats.NewPatients
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && entries == 0) {
		return DailyStats{}, fmt.Errorf("%w: %s", ErrNotFound, day)
	}
	if err != nil {
		return DailyStats{}, err
	}
	return stats, nil
}

func (r *repoPG) Days(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT day FROM activity ORDER BY day DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}
