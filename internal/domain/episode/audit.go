package episode

import (
	"time"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Audit stringification must be stable so history entries can be compared as
// exact text. Dates render as calendar days; everything else as-is.
const auditDateLayout = "2006-01-02"

func auditString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case ServiceType:
		return string(val)
	case Status:
		return string(val)
	case time.Time:
		return val.Format(auditDateLayout)
	case nil:
		return ""
	default:
		return ""
	}
}

// diffFields compares the proposed field changes against the current episode
// and produces one ModificationRecord per changed top-level scalar field, in a
// fixed field order. Nested structures (lab exams, service records) are not
// diffed; only scalar fields appear in the audit trail.
func diffFields(current *Episode, fields UpdateFields, actor auth.Actor, now time.Time) []ModificationRecord {
	var recs []ModificationRecord

	record := func(field, oldValue, newValue string) {
		recs = append(recs, ModificationRecord{
			Field:      field,
			OldValue:   oldValue,
			NewValue:   newValue,
			ModifiedBy: actor,
			Timestamp:  now,
		})
	}

	if fields.FirstName != nil && *fields.FirstName != current.FirstName {
		record("firstName", current.FirstName, *fields.FirstName)
	}
	if fields.LastName != nil && *fields.LastName != current.LastName {
		record("lastName", current.LastName, *fields.LastName)
	}
	if fields.BirthDate != nil && !fields.BirthDate.Equal(current.BirthDate) {
		record("birthDate", auditString(current.BirthDate), auditString(*fields.BirthDate))
	}
	if fields.Gender != nil && *fields.Gender != current.Gender {
		record("gender", current.Gender, *fields.Gender)
	}
	if fields.Company != nil && *fields.Company != current.Company {
		record("company", current.Company, *fields.Company)
	}
	if fields.Notes != nil && *fields.Notes != current.Notes {
		record("notes", current.Notes, *fields.Notes)
	}

	return recs
}

// statusRecord builds the audit entry for a status transition. The old value
// is always read from the episode's current status, so repeated completions
// keep appending records; the history is a log, not a diff cache.
func statusRecord(current *Episode, next Status, actor auth.Actor, now time.Time) ModificationRecord {
	return ModificationRecord{
		Field:      "status",
		OldValue:   auditString(current.Status),
		NewValue:   auditString(next),
		ModifiedBy: actor,
		Timestamp:  now,
	}
}

// applyFields writes the changed values onto the episode and recomputes the
// derived name when a name part changed.
func applyFields(ep *Episode, fields UpdateFields) {
	nameChanged := false
	if fields.FirstName != nil {
		ep.FirstName = *fields.FirstName
		nameChanged = true
	}
	if fields.LastName != nil {
		ep.LastName = *fields.LastName
		nameChanged = true
	}
	if fields.BirthDate != nil {
		ep.BirthDate = *fields.BirthDate
	}
	if fields.Gender != nil {
		ep.Gender = *fields.Gender
	}
	if fields.Company != nil {
		ep.Company = *fields.Company
	}
	if fields.Notes != nil {
		ep.Notes = *fields.Notes
	}
	if nameChanged {
		ep.Name = DeriveName(ep.FirstName, ep.LastName)
	}
}
