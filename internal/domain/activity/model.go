package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Type classifies a journal entry. The counters of DailyStats are keyed off
// these values, so the set is closed.
type Type string

const (
	TypeRegistration      Type = "registration"
	TypeServiceAssignment Type = "service_assignment"
	TypeVisit             Type = "visit"
	TypeConsultation      Type = "consultation"
	TypeEmergency         Type = "emergency"
	TypeLabExam           Type = "lab_exam"
	TypeStatusChange      Type = "status_change"
)

// ParseType validates a journal entry type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeRegistration, TypeServiceAssignment, TypeVisit,
		TypeConsultation, TypeEmergency, TypeLabExam, TypeStatusChange:
		return t, nil
	default:
		return "", fmt.Errorf("unrecognized activity type: %q", s)
	}
}

// DayLayout is the calendar-day key format used to bucket journal entries.
const DayLayout = "2006-01-02"

// Activity is one front-desk journal entry. Entries are append-only and
// bucketed by the calendar day of their timestamp.
type Activity struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Type        Type       `db:"type" json:"type"`
	EpisodeID   uuid.UUID  `db:"episode_id" json:"episode_id"`
	PatientName string     `db:"patient_name" json:"patient_name"`
	Details     string     `db:"details" json:"details"`
	Actor       auth.Actor `db:"-" json:"actor"`
	Timestamp   time.Time  `db:"timestamp" json:"timestamp"`
	Day         string     `db:"day" json:"day"`
}

// DailyStats is the aggregate view of one day's journal.
type DailyStats struct {
	Day               string `db:"day" json:"day"`
	TotalPatients     int    `db:"total_patients" json:"total_patients"`
	NewPatients       int    `db:"new_patients" json:"new_patients"`
	Visits            int    `db:"visits" json:"visits"`
	Consultations     int    `db:"consultations" json:"consultations"`
	Emergencies       int    `db:"emergencies" json:"emergencies"`
	LabExams          int    `db:"lab_exams" json:"lab_exams"`
	CompletedServices int    `db:"completed_services" json:"completed_services"`
}

// terminalDetails reports whether a status-change entry describes a terminal
// transition. Only those count as a completed service; intermediate moves
// like taking charge do not.
func terminalDetails(details string) bool {
	return strings.Contains(strings.ToLower(details), "complet")
}

// apply folds one entry into the running aggregate. ComputeStats and the
// incremental in-memory store both go through this single reducer, so a
// rescan of a day's entries always reproduces the stored aggregate.
// Registrations are the only entries that grow the patient totals; a
// status change counts only when it lands a service in its terminal state.
func (s *DailyStats) apply(a Activity) {
	switch a.Type {
	case TypeRegistration:
		s.NewPatients++
		s.TotalPatients++
	case TypeVisit:
		s.Visits++
	case TypeConsultation:
		s.Consultations++
	case TypeEmergency:
		s.Emergencies++
	case TypeLabExam:
		s.LabExams++
	case TypeStatusChange:
		if terminalDetails(a.Details) {
			s.CompletedServices++
		}
	}
}

// ComputeStats rebuilds the aggregate for a day from its raw entries.
func ComputeStats(day string, entries []Activity) DailyStats {
	stats := DailyStats{Day: day}
	for _, a := range entries {
		stats.apply(a)
	}
	return stats
}
