package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

var frontDesk = auth.Actor{Name: "Alice Front", Role: "registrar"}

func addEntry(t *testing.T, svc *Service, typ Type, name string) *Activity {
	t.Helper()
	return addDetailedEntry(t, svc, typ, name, "")
}

func addDetailedEntry(t *testing.T, svc *Service, typ Type, name, details string) *Activity {
	t.Helper()
	a, err := svc.Add(context.Background(), typ, uuid.New(), name, details, frontDesk)
	if err != nil {
		t.Fatalf("add %s: %v", typ, err)
	}
	return a
}

func TestAdd(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	a := addEntry(t, svc, TypeRegistration, "JOHN DOE")

	if a.ID == uuid.Nil {
		t.Error("expected id assigned")
	}
	if a.Day != a.Timestamp.Format(DayLayout) {
		t.Errorf("day %q does not match timestamp %v", a.Day, a.Timestamp)
	}
	if a.Actor != frontDesk {
		t.Errorf("actor = %+v", a.Actor)
	}
}

func TestAdd_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.Add(ctx, "coffee_break", uuid.New(), "JOHN DOE", "", frontDesk); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := svc.Add(ctx, TypeVisit, uuid.New(), "", "", frontDesk); err == nil {
		t.Error("expected error for missing patient name")
	}
}

func TestStats_ThreeRegistrations(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	today := time.Now().UTC().Format(DayLayout)

	for _, name := range []string{"ANA SILVA", "BEN OKAFOR", "CARA LI"} {
		addEntry(t, svc, TypeRegistration, name)
	}

	stats, err := svc.StatsByDate(context.Background(), today)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.NewPatients != 3 {
		t.Errorf("new_patients = %d, want 3", stats.NewPatients)
	}
	if stats.TotalPatients != 3 {
		t.Errorf("total_patients = %d, want 3", stats.TotalPatients)
	}
}

func TestStats_MatchesRescan(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	today := time.Now().UTC().Format(DayLayout)
	ctx := context.Background()

	sequence := []struct {
		typ     Type
		details string
	}{
		{TypeRegistration, ""},
		{TypeVisit, ""},
		{TypeConsultation, ""},
		{TypeEmergency, ""},
		{TypeLabExam, "requested"},
		{TypeStatusChange, "take charge"},
		{TypeRegistration, ""},
		{TypeLabExam, "performed"},
		{TypeServiceAssignment, ""},
		{TypeStatusChange, "complete"},
	}
	for _, step := range sequence {
		addDetailedEntry(t, svc, step.typ, "JOHN DOE", step.details)
	}

	stored, err := svc.StatsByDate(ctx, today)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	entries, err := svc.ByDate(ctx, today)
	if err != nil {
		t.Fatalf("by date: %v", err)
	}

	if rescan := ComputeStats(today, entries); stored != rescan {
		t.Errorf("incremental stats %+v differ from rescan %+v", stored, rescan)
	}
	if stored.NewPatients != 2 || stored.TotalPatients != 2 || stored.LabExams != 2 {
		t.Errorf("unexpected stats: %+v", stored)
	}
	// Two status changes were journaled but only the terminal one counts.
	if stored.CompletedServices != 1 {
		t.Errorf("completed_services = %d, want 1", stored.CompletedServices)
	}
}

func TestStatsByDate_Absent(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	_, err := svc.StatsByDate(context.Background(), "2001-01-01")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestByDate_InvalidFormat(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	_, err := svc.ByDate(context.Background(), "01/01/2001")
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("malformed date must not map to ErrNotFound")
	}
}

func TestByDate_NewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	today := time.Now().UTC().Format(DayLayout)

	first := addEntry(t, svc, TypeRegistration, "FIRST IN")
	second := addEntry(t, svc, TypeVisit, "SECOND IN")

	entries, err := svc.ByDate(context.Background(), today)
	if err != nil {
		t.Fatalf("by date: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != second.ID || entries[1].ID != first.ID {
		t.Error("expected newest entry first")
	}
}

func TestDates_NewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	// Seed the repository directly to control the day buckets.
	for _, day := range []string{"2026-08-01", "2026-08-15", "2026-08-07"} {
		ts, _ := time.Parse(DayLayout, day)
		err := repo.Add(ctx, &Activity{
			Type: TypeVisit, EpisodeID: uuid.New(), PatientName: "JOHN DOE",
			Actor: frontDesk, Timestamp: ts, Day: day,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", day, err)
		}
	}

	days, err := NewService(repo).Dates(ctx)
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	want := []string{"2026-08-15", "2026-08-07", "2026-08-01"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("days[%d] = %q, want %q", i, days[i], want[i])
		}
	}
}
