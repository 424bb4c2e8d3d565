package episode

import (
	"testing"
	"time"
)

func TestParseServiceType(t *testing.T) {
	tests := []struct {
		code string
		want ServiceType
	}{
		{"vm", ServiceMedicalVisit},
		{"MV", ServiceMedicalVisit},
		{"visit", ServiceMedicalVisit},
		{"medical_visit", ServiceMedicalVisit},
		{"cons", ServiceConsultation},
		{"Consultation", ServiceConsultation},
		{"er", ServiceEmergency},
		{"URGENCE", ServiceEmergency},
		{" emergency ", ServiceEmergency},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := ParseServiceType(tt.code)
			if err != nil {
				t.Fatalf("ParseServiceType(%q): %v", tt.code, err)
			}
			if got != tt.want {
				t.Errorf("ParseServiceType(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestParseServiceType_Unknown(t *testing.T) {
	if _, err := ParseServiceType("spa-day"); err == nil {
		t.Error("expected error for unknown code")
	}
	if _, err := ParseServiceType(""); err == nil {
		t.Error("expected error for empty code")
	}
}

func TestDeriveName(t *testing.T) {
	if got := DeriveName("John", "Doe"); got != "JOHN DOE" {
		t.Errorf("DeriveName = %q, want JOHN DOE", got)
	}
	if got := DeriveName("ana maría", "de la cruz"); got != "ANA MARÍA DE LA CRUZ" {
		t.Errorf("DeriveName = %q", got)
	}
}

func TestPriority(t *testing.T) {
	ep := &Episode{Service: ServiceEmergency}
	if ep.Priority() != PriorityHigh {
		t.Errorf("emergency priority = %q, want High", ep.Priority())
	}
	for _, svc := range []ServiceType{ServiceMedicalVisit, ServiceConsultation} {
		ep := &Episode{Service: svc}
		if ep.Priority() != PriorityNormal {
			t.Errorf("%s priority = %q, want Normal", svc, ep.Priority())
		}
	}
}

// Priority is derived purely from the service type; no stored field flips it.
func TestPriority_IgnoresStatus(t *testing.T) {
	ep := &Episode{Service: ServiceEmergency, Status: StatusCompleted}
	if ep.Priority() != PriorityHigh {
		t.Error("completed emergency episode must stay High")
	}
	ep = &Episode{Service: ServiceConsultation, Status: StatusInProgress}
	if ep.Priority() != PriorityNormal {
		t.Error("in-progress consultation must stay Normal")
	}
}

func TestClone_Independence(t *testing.T) {
	now := time.Now()
	ep := &Episode{
		FirstName:       "John",
		PendingLabExams: []LabExam{{Type: "x-ray", RequestedAt: now}},
		ServiceHistory: []ServiceRecord{
			{ServiceData: map[string]interface{}{"k": "v"}, Date: now},
		},
	}
	cp := ep.Clone()

	cp.PendingLabExams[0].Type = "mutated"
	cp.ServiceHistory[0].ServiceData["k"] = "mutated"

	if ep.PendingLabExams[0].Type != "x-ray" {
		t.Error("clone shares the lab exam slice")
	}
	if ep.ServiceHistory[0].ServiceData["k"] != "v" {
		t.Error("clone shares the service data map")
	}
}
