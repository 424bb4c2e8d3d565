package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/metrics"
)

type Service struct {
	repo Repository
	m    *metrics.Metrics
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetMetrics attaches an optional metrics collector to the service.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.m = m
}

func (s *Service) record(op string, err error) {
	if s.m != nil {
		s.m.RecordOperation("activity_"+op, err)
	}
}

// Add appends a journal entry. The id, timestamp and day bucket are assigned
// here; callers supply only the event itself.
func (s *Service) Add(ctx context.Context, t Type, episodeID uuid.UUID, patientName, details string, actor auth.Actor) (a *Activity, err error) {
	defer func() { s.record("add", err) }()

	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	if patientName == "" {
		return nil, fmt.Errorf("patient_name is required")
	}

	now := time.Now().UTC()
	a = &Activity{
		ID:          uuid.New(),
		Type:        t,
		EpisodeID:   episodeID,
		PatientName: patientName,
		Details:     details,
		Actor:       actor,
		Timestamp:   now,
		Day:         now.Format(DayLayout),
	}
	if err := s.repo.Add(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ByDate(ctx context.Context, day string) ([]Activity, error) {
	if err := validDay(day); err != nil {
		return nil, err
	}
	return s.repo.ByDay(ctx, day)
}

func (s *Service) StatsByDate(ctx context.Context, day string) (DailyStats, error) {
	if err := validDay(day); err != nil {
		return DailyStats{}, err
	}
	return s.repo.StatsByDay(ctx, day)
}

func (s *Service) Dates(ctx context.Context) ([]string, error) {
	return s.repo.Days(ctx)
}

func validDay(day string) error {
	if _, err := time.Parse(DayLayout, day); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", day)
	}
	return nil
}
