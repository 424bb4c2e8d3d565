package episode

import (
	"context"
	"time"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// ImportRow is one line of a bulk registration feed, as read from CSV.
// BirthDate is the raw string so a bad date can be reported per row instead
// of failing the whole batch.
type ImportRow struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
	Company   string `json:"company"`
	Service   string `json:"service"`
	Notes     string `json:"notes"`
}

// BulkImport registers many episodes in one call. Each row is validated
// independently: valid rows are created, invalid rows are reported with
// their 1-based row number and offending field. A bad row never blocks the
// rows around it.
func (s *Service) BulkImport(ctx context.Context, rows []ImportRow, actor auth.Actor) (res ImportResult, err error) {
	defer func() { s.record("bulk_import", err) }()

	if err := authorize(actor, intakeRoles); err != nil {
		return ImportResult{}, err
	}

	for i, row := range rows {
		rowNum := i + 1
		draft, rowErr := parseRow(rowNum, row)
		if rowErr != nil {
			res.Errors = append(res.Errors, *rowErr)
			continue
		}
		ep := &Episode{
			FirstName:    draft.FirstName,
			LastName:     draft.LastName,
			Name:         DeriveName(draft.FirstName, draft.LastName),
			BirthDate:    draft.BirthDate,
			Gender:       draft.Gender,
			Company:      draft.Company,
			Service:      draft.Service,
			Status:       StatusWaiting,
			RegisteredAt: time.Now().UTC(),
			Notes:        draft.Notes,
		}
		if err := s.repo.Create(ctx, ep); err != nil {
			res.Errors = append(res.Errors, RowError{Row: rowNum, Field: "", Message: err.Error()})
			continue
		}
		res.Created = append(res.Created, ep)
	}
	return res, nil
}

func parseRow(rowNum int, row ImportRow) (Draft, *RowError) {
	fail := func(field, msg string) (Draft, *RowError) {
		return Draft{}, &RowError{Row: rowNum, Field: field, Message: msg}
	}

	if row.FirstName == "" {
		return fail("firstName", "is required")
	}
	if row.LastName == "" {
		return fail("lastName", "is required")
	}
	if row.BirthDate == "" {
		return fail("birthDate", "is required")
	}
	birth, err := time.Parse(auditDateLayout, row.BirthDate)
	if err != nil {
		return fail("birthDate", "must be YYYY-MM-DD")
	}
	if row.Gender == "" {
		return fail("gender", "is required")
	}
	if row.Company == "" {
		return fail("company", "is required")
	}
	svc, err := ParseServiceType(row.Service)
	if err != nil {
		return fail("service", err.Error())
	}

	return Draft{
		FirstName: row.FirstName,
		LastName:  row.LastName,
		BirthDate: birth,
		Gender:    row.Gender,
		Company:   row.Company,
		Service:   svc,
		Notes:     row.Notes,
	}, nil
}
