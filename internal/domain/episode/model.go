package episode

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// ServiceType is the kind of visit an episode represents. Fixed at creation;
// opening a second service for the same person means creating a new episode
// linked through OriginalPatientID, never mutating the service in place.
type ServiceType string

const (
	ServiceMedicalVisit ServiceType = "MedicalVisit"
	ServiceConsultation ServiceType = "Consultation"
	ServiceEmergency    ServiceType = "Emergency"
)

// serviceCodes maps the short codes accepted by bulk import onto the
// three-way service enum. Matching is case-insensitive.
var serviceCodes = map[string]ServiceType{
	"medicalvisit":  ServiceMedicalVisit,
	"medical_visit": ServiceMedicalVisit,
	"medical visit": ServiceMedicalVisit,
	"visit":         ServiceMedicalVisit,
	"vm":            ServiceMedicalVisit,
	"mv":            ServiceMedicalVisit,
	"consultation":  ServiceConsultation,
	"cons":          ServiceConsultation,
	"emergency":     ServiceEmergency,
	"er":            ServiceEmergency,
	"urgence":       ServiceEmergency,
}

// ParseServiceType normalizes a service code case-insensitively to the
// three-way enum. Unrecognized codes error.
func ParseServiceType(code string) (ServiceType, error) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if svc, ok := serviceCodes[normalized]; ok {
		return svc, nil
	}
	return "", fmt.Errorf("unrecognized service code: %q", code)
}

// Status is the lifecycle state of an episode.
type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
)

// Priority of an episode, derived from its service type, never stored.
type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
)

// Episode is one service-visit instance for one person.
type Episode struct {
	ID                  uuid.UUID            `db:"id" json:"id"`
	FirstName           string               `db:"first_name" json:"first_name"`
	LastName            string               `db:"last_name" json:"last_name"`
	Name                string               `db:"name" json:"name"`
	BirthDate           time.Time            `db:"birth_date" json:"birth_date"`
	Gender              string               `db:"gender" json:"gender"`
	Company             string               `db:"company" json:"company"`
	Service             ServiceType          `db:"service" json:"service"`
	Status              Status               `db:"status" json:"status"`
	RegisteredAt        time.Time            `db:"registered_at" json:"registered_at"`
	TakenCareBy         *auth.Actor          `db:"-" json:"taken_care_by,omitempty"`
	Notes               string               `db:"notes" json:"notes"`
	OriginalPatientID   *uuid.UUID           `db:"original_patient_id" json:"original_patient_id,omitempty"`
	Version             int                  `db:"version" json:"version"`
	UpdatedAt           time.Time            `db:"updated_at" json:"updated_at"`
	ModificationHistory []ModificationRecord `db:"-" json:"modification_history"`
	PendingLabExams     []LabExam            `db:"-" json:"pending_lab_exams"`
	CompletedLabExams   []LabExam            `db:"-" json:"completed_lab_exams"`
	ServiceHistory      []ServiceRecord      `db:"-" json:"service_history"`
}

// Priority is High for emergency episodes and Normal otherwise. Pure
// derivation from the service type, independent of any stored field.
func (e *Episode) Priority() Priority {
	if e.Service == ServiceEmergency {
		return PriorityHigh
	}
	return PriorityNormal
}

// DeriveName builds the display name from the name parts.
func DeriveName(firstName, lastName string) string {
	return strings.ToUpper(strings.TrimSpace(firstName + " " + lastName))
}

// Clone returns a deep copy of the episode.
func (e *Episode) Clone() *Episode {
	cp := *e
	if e.TakenCareBy != nil {
		actor := *e.TakenCareBy
		cp.TakenCareBy = &actor
	}
	if e.OriginalPatientID != nil {
		id := *e.OriginalPatientID
		cp.OriginalPatientID = &id
	}
	cp.ModificationHistory = append([]ModificationRecord(nil), e.ModificationHistory...)
	cp.PendingLabExams = cloneExams(e.PendingLabExams)
	cp.CompletedLabExams = cloneExams(e.CompletedLabExams)
	cp.ServiceHistory = make([]ServiceRecord, len(e.ServiceHistory))
	for i, rec := range e.ServiceHistory {
		cp.ServiceHistory[i] = rec.clone()
	}
	return &cp
}

func cloneExams(exams []LabExam) []LabExam {
	if exams == nil {
		return nil
	}
	out := make([]LabExam, len(exams))
	for i, x := range exams {
		out[i] = x
		if x.CompletedBy != nil {
			actor := *x.CompletedBy
			out[i].CompletedBy = &actor
		}
	}
	return out
}

// LabExam is one requested laboratory or paraclinical test. An exam belongs
// to exactly one of the pending/completed lists of its episode at any time.
type LabExam struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	Type        string      `db:"type" json:"type"`
	RequestedBy auth.Actor  `db:"-" json:"requested_by"`
	RequestedAt time.Time   `db:"requested_at" json:"requested_at"`
	Results     string      `db:"results" json:"results,omitempty"`
	CompletedBy *auth.Actor `db:"-" json:"completed_by,omitempty"`
	CompletedAt *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
}

// Completed reports whether the exam has been performed.
func (x *LabExam) Completed() bool {
	return x.CompletedAt != nil
}

// LabExamRequest is the caller-supplied shape of a new exam request.
type LabExamRequest struct {
	Type string `json:"type"`
}

// ModificationRecord is an immutable record of one field-level change.
type ModificationRecord struct {
	Field      string     `db:"field" json:"field"`
	OldValue   string     `db:"old_value" json:"old_value"`
	NewValue   string     `db:"new_value" json:"new_value"`
	ModifiedBy auth.Actor `db:"-" json:"modified_by"`
	Timestamp  time.Time  `db:"modified_at" json:"timestamp"`
}

// ServiceRecord is a snapshot of one completed service-form submission.
// ServiceData is an opaque payload owned by the calling form; the core
// preserves it but never interprets it.
type ServiceRecord struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	ServiceType ServiceType            `db:"service_type" json:"service_type"`
	ServiceData map[string]interface{} `db:"service_data" json:"service_data"`
	Date        time.Time              `db:"date" json:"date"`
}

func (r ServiceRecord) clone() ServiceRecord {
	cp := r
	if r.ServiceData != nil {
		cp.ServiceData = make(map[string]interface{}, len(r.ServiceData))
		for k, v := range r.ServiceData {
			cp.ServiceData[k] = v
		}
	}
	return cp
}

// Draft holds the fields required to create an episode.
type Draft struct {
	FirstName         string      `json:"first_name"`
	LastName          string      `json:"last_name"`
	BirthDate         time.Time   `json:"birth_date"`
	Gender            string      `json:"gender"`
	Company           string      `json:"company"`
	Service           ServiceType `json:"service"`
	Notes             string      `json:"notes"`
	OriginalPatientID *uuid.UUID  `json:"original_patient_id,omitempty"`
}

// UpdateFields carries a partial update. Nil pointers mean "leave unchanged".
// ExpectedVersion, when non-zero, enables optimistic concurrency checking.
type UpdateFields struct {
	FirstName       *string    `json:"first_name,omitempty"`
	LastName        *string    `json:"last_name,omitempty"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	Gender          *string    `json:"gender,omitempty"`
	Company         *string    `json:"company,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	ExpectedVersion int        `json:"expected_version,omitempty"`
}
