package episode

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
		s.m.RecordOperation("episode_"+op, err)
	}
}

// Role policy, enforced centrally here rather than in scattered callers.
// Intake operations are open to the front desk; care operations require a
// clinical role. Admin passes everywhere.
var (
	intakeRoles   = map[string]bool{"admin": true, "registrar": true, "nurse": true, "physician": true}
	clinicalRoles = map[string]bool{"admin": true, "nurse": true, "physician": true}
)

func authorize(actor auth.Actor, allowed map[string]bool) error {
	if actor.Name == "" || !allowed[actor.Role] {
		return fmt.Errorf("%w: %q", ErrForbidden, actor.Role)
	}
	return nil
}

// Create registers a new episode: fresh id, status Waiting, derived name.
// Only required-field presence is validated here; richer validation belongs
// to the interactive forms.
func (s *Service) Create(ctx context.Context, draft Draft, actor auth.Actor) (ep *Episode, err error) {
	defer func() { s.record("create", err) }()

	if err := authorize(actor, intakeRoles); err != nil {
		return nil, err
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	ep = &Episode{
		FirstName:         draft.FirstName,
		LastName:          draft.LastName,
		Name:              DeriveName(draft.FirstName, draft.LastName),
		BirthDate:         draft.BirthDate,
		Gender:            draft.Gender,
		Company:           draft.Company,
		Service:           draft.Service,
		Status:            StatusWaiting,
		RegisteredAt:      time.Now().UTC(),
		Notes:             draft.Notes,
		OriginalPatientID: draft.OriginalPatientID,
	}
	if err := s.repo.Create(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func validateDraft(draft Draft) error {
	if draft.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if draft.LastName == "" {
		return fmt.Errorf("last_name is required")
	}
	if draft.BirthDate.IsZero() {
		return fmt.Errorf("birth_date is required")
	}
	if draft.Gender == "" {
		return fmt.Errorf("gender is required")
	}
	if draft.Company == "" {
		return fmt.Errorf("company is required")
	}
	switch draft.Service {
	case ServiceMedicalVisit, ServiceConsultation, ServiceEmergency:
	default:
		return fmt.Errorf("invalid service: %q", draft.Service)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Episode, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Episode, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update applies a partial field update. Every changed top-level scalar field
// yields one ModificationRecord, prepended to the episode's history before
// the new values are applied. Unknown ids fail with ErrNotFound.
func (s *Service) Update(ctx context.Context, id uuid.UUID, fields UpdateFields, actor auth.Actor) (err error) {
	defer func() { s.record("update", err) }()

	if err := authorize(actor, intakeRoles); err != nil {
		return err
	}
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if fields.ExpectedVersion > 0 && fields.ExpectedVersion != ep.Version {
		return fmt.Errorf("%w: expected version %d, have %d", ErrConflict, fields.ExpectedVersion, ep.Version)
	}

	recs := diffFields(ep, fields, actor, time.Now().UTC())
	if len(recs) == 0 {
		return nil
	}
	applyFields(ep, fields)

	return s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AppendModifications(ctx, id, recs); err != nil {
			return err
		}
		return s.repo.Update(ctx, ep, ep.Version)
	})
}

// TakeCharge moves the episode to InProgress and records who accepted
// responsibility for it.
func (s *Service) TakeCharge(ctx context.Context, id uuid.UUID, actor auth.Actor) (err error) {
	defer func() { s.record("take_charge", err) }()
	return s.transition(ctx, id, StatusInProgress, actor)
}

// Complete moves the episode to Completed. Calling it on an already-Completed
// episode still appends a fresh audit record: the history is a log of calls,
// not a diff cache.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor auth.Actor) (err error) {
	defer func() { s.record("complete", err) }()
	return s.transition(ctx, id, StatusCompleted, actor)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, next Status, actor auth.Actor) error {
	if err := authorize(actor, clinicalRoles); err != nil {
		return err
	}
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	rec := statusRecord(ep, next, actor, time.Now().UTC())
	ep.Status = next
	ep.TakenCareBy = &actor

	return s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AppendModifications(ctx, id, []ModificationRecord{rec}); err != nil {
			return err
		}
		return s.repo.Update(ctx, ep, ep.Version)
	})
}

// CloneForNewService opens a second service for the same underlying person:
// a brand-new Waiting episode carrying the source's identity fields and a
// weak back-reference, with none of its history, notes or exams.
func (s *Service) CloneForNewService(ctx context.Context, existingID uuid.UUID, svc ServiceType, actor auth.Actor) (ep *Episode, err error) {
	defer func() { s.record("clone", err) }()

	if err := authorize(actor, intakeRoles); err != nil {
		return nil, err
	}
	src, err := s.repo.GetByID(ctx, existingID)
	if err != nil {
		return nil, err
	}

	draft := Draft{
		FirstName:         src.FirstName,
		LastName:          src.LastName,
		BirthDate:         src.BirthDate,
		Gender:            src.Gender,
		Company:           src.Company,
		Service:           svc,
		OriginalPatientID: &src.ID,
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	ep = &Episode{
		FirstName:         draft.FirstName,
		LastName:          draft.LastName,
		Name:              DeriveName(draft.FirstName, draft.LastName),
		BirthDate:         draft.BirthDate,
		Gender:            draft.Gender,
		Company:           draft.Company,
		Service:           draft.Service,
		Status:            StatusWaiting,
		RegisteredAt:      time.Now().UTC(),
		OriginalPatientID: draft.OriginalPatientID,
	}
	if err := s.repo.Create(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// RequestExams appends new pending lab exams. The completed list is never
// touched here.
func (s *Service) RequestExams(ctx context.Context, id uuid.UUID, reqs []LabExamRequest, requester auth.Actor) (err error) {
	defer func() { s.record("request_exams", err) }()

	if err := authorize(requester, clinicalRoles); err != nil {
		return err
	}
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	exams := make([]LabExam, 0, len(reqs))
	for _, req := range reqs {
		if req.Type == "" {
			return fmt.Errorf("exam type is required")
		}
		exams = append(exams, LabExam{
			ID:          uuid.New(),
			Type:        req.Type,
			RequestedBy: requester,
			RequestedAt: now,
		})
	}

	return s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AppendLabExams(ctx, id, exams); err != nil {
			return err
		}
		return s.repo.Update(ctx, ep, ep.Version)
	})
}

// PerformExams partitions the current pending list in one atomic step: every
// pending exam whose index carries a non-empty result is stamped and moved to
// the completed list; the rest stay pending, unchanged. An exam is never
// observable in neither list.
func (s *Service) PerformExams(ctx context.Context, id uuid.UUID, resultsByIndex map[int]string, performer auth.Actor) (err error) {
	defer func() { s.record("perform_exams", err) }()

	if err := authorize(performer, clinicalRoles); err != nil {
		return err
	}
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var completed []LabExam
	for i, exam := range ep.PendingLabExams {
		text, ok := resultsByIndex[i]
		if !ok || text == "" {
			continue
		}
		exam.Results = text
		exam.CompletedBy = &performer
		exam.CompletedAt = &now
		completed = append(completed, exam)
	}
	for idx := range resultsByIndex {
		if idx < 0 || idx >= len(ep.PendingLabExams) {
			return fmt.Errorf("%w: no pending exam at index %d", ErrNotFound, idx)
		}
	}
	if len(completed) == 0 {
		return nil
	}

	return s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CompleteLabExams(ctx, id, completed); err != nil {
			return err
		}
		return s.repo.Update(ctx, ep, ep.Version)
	})
}

// AddServiceRecord snapshots a completed service-form payload and transitions
// the episode to Completed as one transactional unit, so no observer can see
// the record appended without the status change or vice versa.
func (s *Service) AddServiceRecord(ctx context.Context, id uuid.UUID, serviceType ServiceType, serviceData map[string]interface{}, actor auth.Actor) (err error) {
	defer func() { s.record("add_service_record", err) }()

	if err := authorize(actor, clinicalRoles); err != nil {
		return err
	}
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if serviceType == "" {
		serviceType = ep.Service
	}

	now := time.Now().UTC()
	rec := ServiceRecord{
		ID:          uuid.New(),
		ServiceType: serviceType,
		ServiceData: serviceData,
		Date:        now,
	}
	statusRec := statusRecord(ep, StatusCompleted, actor, now)
	ep.Status = StatusCompleted
	ep.TakenCareBy = &actor

	return s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AppendServiceRecord(ctx, id, rec); err != nil {
			return err
		}
		if err := s.repo.AppendModifications(ctx, id, []ModificationRecord{statusRec}); err != nil {
			return err
		}
		return s.repo.Update(ctx, ep, ep.Version)
	})
}

// UpdateServiceHistory merges a patch into the ServiceData of the record
// matching recordDate. Used by the reviewer workflow to attach a doctorReview
// after the fact; the payload stays opaque to the core, and the record's date
// and service type never change.
func (s *Service) UpdateServiceHistory(ctx context.Context, id uuid.UUID, recordDate time.Time, patch map[string]interface{}, actor auth.Actor) (err error) {
	defer func() { s.record("update_service_history", err) }()

	if err := authorize(actor, clinicalRoles); err != nil {
		return err
	}
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var existing *ServiceRecord
	for i := range ep.ServiceHistory {
		if ep.ServiceHistory[i].Date.Equal(recordDate) {
			existing = &ep.ServiceHistory[i]
			break
		}
	}
	if existing == nil {
		return fmt.Errorf("%w: no service record dated %s", ErrNotFound, recordDate.Format(time.RFC3339))
	}

	merged := make(map[string]interface{}, len(existing.ServiceData)+len(patch))
	for k, v := range existing.ServiceData {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	return s.repo.UpdateServiceRecord(ctx, id, ServiceRecord{
		ServiceType: existing.ServiceType,
		ServiceData: merged,
		Date:        existing.Date,
	})
}
