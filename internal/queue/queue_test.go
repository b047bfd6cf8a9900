package queue

import (
	"context"
	"testing"

	"github.com/your-org/safety/internal/models"
)

func TestSubjectFor(t *testing.T) {
	tests := map[string]string{
		"gate-1":       "recognitions.gate-1",
		"":             "recognitions.unknown",
		"line.a b":     "recognitions.line_a_b",
		" cam>* ":      "recognitions.cam__",
		"ppe-detector": "recognitions.ppe-detector",
	}
	for in, want := range tests {
		if got := subjectFor(in); got != want {
			t.Errorf("subjectFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeReport(t *testing.T) {
	res, err := decodeReport([]byte(`{"status":"SUCCESS","worker":{"id":3,"name":"Kim","employeeNumber":1001},"ppe":{"isSafe":true,"detections":[]},"source":"gate-1","timestamp":"2024-05-01T08:00:00Z"}`))
	if err != nil {
		t.Fatalf("decodeReport: %v", err)
	}
	if !res.Broadcastable() || res.Worker.ID != "3" || res.Worker.EmployeeNumber != "1001" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.PPE == nil || !res.PPE.IsSafe {
		t.Errorf("ppe lost: %+v", res.PPE)
	}
	if res.Status != models.RecognitionSuccess || res.Timestamp.Year() != 2024 {
		t.Errorf("unexpected status/timestamp %s %s", res.Status, res.Timestamp)
	}

	for _, bad := range []string{`{`, `{"status":"MAYBE"}`, `{"status":"SUCCESS","timestamp":"yesterday"}`} {
		if _, err := decodeReport([]byte(bad)); err == nil {
			t.Errorf("decodeReport(%s) should fail", bad)
		}
	}
}

func TestConsumerReadyRequiresRunningLoop(t *testing.T) {
	c := &Consumer{}
	if err := c.Ready(context.Background()); err == nil {
		t.Fatal("consumer that never started must not be ready")
	}

	c.running.Store(true)
	if err := c.Ready(context.Background()); err == nil {
		t.Fatal("consumer without a connection must not be ready")
	}
}
