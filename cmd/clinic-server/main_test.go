package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/activity"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadImportFile(t *testing.T) {
	path := writeCSV(t, "first_name,last_name,birth_date,gender,company,service,notes\n"+
		"Ana,Silva,1985-02-01,female,Acme,vm,\n"+
		"Ben,Okafor,1990-06-12,male,Beta,er,walk-in\n")

	rows, err := readImportFile(path)
	if err != nil {
		t.Fatalf("readImportFile: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].FirstName != "Ana" || rows[0].Service != "vm" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Notes != "walk-in" {
		t.Errorf("expected notes on second row, got %+v", rows[1])
	}
}

func TestReadImportFile_NoHeader(t *testing.T) {
	path := writeCSV(t, "Ana,Silva,1985-02-01,female,Acme,vm\n")

	rows, err := readImportFile(path)
	if err != nil {
		t.Fatalf("readImportFile: %v", err)
	}
	if len(rows) != 1 || rows[0].FirstName != "Ana" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestReadImportFile_ShortRow(t *testing.T) {
	path := writeCSV(t, "Ana,Silva,1985-02-01\n")

	rows, err := readImportFile(path)
	if err != nil {
		t.Fatalf("readImportFile: %v", err)
	}
	if len(rows) != 1 || rows[0].Gender != "" || rows[0].BirthDate != "1985-02-01" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestActivityServiceAdapter(t *testing.T) {
	svc := activity.NewService(activity.NewMemoryRepo())
	adapter := NewActivityServiceAdapter(svc, zerolog.Nop())
	ctx := context.Background()
	actor := auth.Actor{Name: "Alice", Role: "registrar"}

	adapter.LogActivity(ctx, "registration", uuid.New(), "ANA SILVA", "MedicalVisit", actor)
	// Unknown kinds are dropped without panicking.
	adapter.LogActivity(ctx, "coffee_break", uuid.New(), "ANA SILVA", "", actor)

	days, err := svc.Dates(ctx)
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day with entries, got %d", len(days))
	}
	stats, err := svc.StatsByDate(ctx, days[0])
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.NewPatients != 1 || stats.TotalPatients != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
