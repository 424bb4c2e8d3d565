package episode

import (
	"testing"
	"time"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

func TestDiffFields_AllFields(t *testing.T) {
	birth := time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC)
	newBirth := time.Date(1991, 4, 16, 0, 0, 0, 0, time.UTC)
	ep := &Episode{
		FirstName: "John",
		LastName:  "Doe",
		BirthDate: birth,
		Gender:    "male",
		Company:   "Acme",
		Notes:     "old notes",
	}

	str := func(s string) *string { return &s }
	fields := UpdateFields{
		FirstName: str("Jane"),
		LastName:  str("Smith"),
		BirthDate: &newBirth,
		Gender:    str("female"),
		Company:   str("Beta"),
		Notes:     str("new notes"),
	}

	actor := auth.Actor{Name: "Alice", Role: "registrar"}
	now := time.Now()
	recs := diffFields(ep, fields, actor, now)

	if len(recs) != 6 {
		t.Fatalf("expected 6 records, got %d", len(recs))
	}

	wantOrder := []string{"firstName", "lastName", "birthDate", "gender", "company", "notes"}
	for i, want := range wantOrder {
		if recs[i].Field != want {
			t.Errorf("record %d field = %q, want %q", i, recs[i].Field, want)
		}
		if recs[i].ModifiedBy != actor {
			t.Errorf("record %d modifier = %+v", i, recs[i].ModifiedBy)
		}
		if !recs[i].Timestamp.Equal(now) {
			t.Errorf("record %d timestamp mismatch", i)
		}
	}

	if recs[2].OldValue != "1990-03-15" || recs[2].NewValue != "1991-04-16" {
		t.Errorf("birth date must render as calendar day: %+v", recs[2])
	}
}

func TestDiffFields_OnlyChangedFields(t *testing.T) {
	ep := &Episode{FirstName: "John", Company: "Acme"}
	same := "John"
	changed := "Beta"
	recs := diffFields(ep, UpdateFields{FirstName: &same, Company: &changed}, auth.Actor{}, time.Now())

	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Field != "company" || recs[0].OldValue != "Acme" || recs[0].NewValue != "Beta" {
		t.Errorf("unexpected record: %+v", recs[0])
	}
}

func TestDiffFields_NilPointersIgnored(t *testing.T) {
	ep := &Episode{FirstName: "John", Company: "Acme"}
	recs := diffFields(ep, UpdateFields{}, auth.Actor{}, time.Now())
	if len(recs) != 0 {
		t.Errorf("expected no records for empty update, got %d", len(recs))
	}
}

func TestStatusRecord(t *testing.T) {
	ep := &Episode{Status: StatusWaiting}
	actor := auth.Actor{Name: "Nadia", Role: "nurse"}
	rec := statusRecord(ep, StatusInProgress, actor, time.Now())

	if rec.Field != "status" {
		t.Errorf("field = %q, want status", rec.Field)
	}
	if rec.OldValue != "Waiting" || rec.NewValue != "InProgress" {
		t.Errorf("values = %q -> %q", rec.OldValue, rec.NewValue)
	}
}

func TestApplyFields_RecomputesName(t *testing.T) {
	ep := &Episode{FirstName: "John", LastName: "Doe", Name: "JOHN DOE"}
	last := "Smith"
	applyFields(ep, UpdateFields{LastName: &last})

	if ep.Name != "JOHN SMITH" {
		t.Errorf("name = %q, want JOHN SMITH", ep.Name)
	}
}

func TestApplyFields_NonNameFieldKeepsName(t *testing.T) {
	ep := &Episode{FirstName: "John", LastName: "Doe", Name: "JOHN DOE"}
	company := "Beta"
	applyFields(ep, UpdateFields{Company: &company})

	if ep.Name != "JOHN DOE" {
		t.Errorf("name must not change, got %q", ep.Name)
	}
	if ep.Company != "Beta" {
		t.Errorf("company = %q", ep.Company)
	}
}
