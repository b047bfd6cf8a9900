package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/your-org/safety/internal/models"
)

// FlexString decodes a JSON string or number into a string. The recognition
// backend sends worker ids either way.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

type RecognizedWorker struct {
	ID             FlexString `json:"id"`
	Name           string     `json:"name"`
	Team           string     `json:"team"`
	EmployeeNumber FlexString `json:"employeeNumber"`
}

type Detection struct {
	Box     [4]float32 `json:"box"`
	Label   string     `json:"label"`
	ClassID int        `json:"classId"`
}

type PPEStatus struct {
	IsSafe     bool        `json:"isSafe"`
	Detections []Detection `json:"detections"`
}

// FrameReply is sent back to the frame sender for every non-empty frame.
type FrameReply struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Worker  *RecognizedWorker `json:"worker,omitempty"`
}

// RecognitionReport travels on the report channel (NATS or POST /v1/recognitions).
type RecognitionReport struct {
	Status    string            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Worker    *RecognizedWorker `json:"worker,omitempty"`
	PPE       *PPEStatus        `json:"ppe,omitempty"`
	Source    string            `json:"source,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
}

// RecognitionEvent is pushed to dashboard observers.
type RecognitionEvent struct {
	Type      string            `json:"type"`
	Worker    *RecognizedWorker `json:"worker"`
	PPE       *PPEStatus        `json:"ppe,omitempty"`
	Source    string            `json:"source,omitempty"`
	Timestamp string            `json:"timestamp"`
}

const EventWorkerRecognized = "worker_recognized"

func WorkerFromModel(w *models.RecognizedWorker) *RecognizedWorker {
	if w == nil {
		return nil
	}
	return &RecognizedWorker{
		ID:             FlexString(w.ID),
		Name:           w.Name,
		Team:           w.Team,
		EmployeeNumber: FlexString(w.EmployeeNumber),
	}
}

func (w *RecognizedWorker) ToModel() *models.RecognizedWorker {
	if w == nil {
		return nil
	}
	return &models.RecognizedWorker{
		ID:             string(w.ID),
		Name:           w.Name,
		Team:           w.Team,
		EmployeeNumber: string(w.EmployeeNumber),
	}
}

func PPEFromModel(p *models.PPEStatus) *PPEStatus {
	if p == nil {
		return nil
	}
	out := &PPEStatus{IsSafe: p.IsSafe, Detections: make([]Detection, 0, len(p.Detections))}
	for _, d := range p.Detections {
		out.Detections = append(out.Detections, Detection{Box: d.Box, Label: d.Label, ClassID: d.ClassID})
	}
	return out
}

func (p *PPEStatus) ToModel() *models.PPEStatus {
	if p == nil {
		return nil
	}
	out := &models.PPEStatus{IsSafe: p.IsSafe, Detections: make([]models.Detection, 0, len(p.Detections))}
	for _, d := range p.Detections {
		out.Detections = append(out.Detections, models.Detection{Box: d.Box, Label: d.Label, ClassID: d.ClassID})
	}
	return out
}

// ReportFromResult converts a result into its report-channel form.
func ReportFromResult(r models.RecognitionResult) RecognitionReport {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return RecognitionReport{
		Status:    string(r.Status),
		Message:   r.Message,
		Worker:    WorkerFromModel(r.Worker),
		PPE:       PPEFromModel(r.PPE),
		Source:    r.Source,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
}

// ToResult validates a report at the boundary.
func (r RecognitionReport) ToResult() (models.RecognitionResult, error) {
	status := models.RecognitionStatus(r.Status)
	if !status.Valid() {
		return models.RecognitionResult{}, fmt.Errorf("invalid status %q", r.Status)
	}
	ts := time.Now()
	if r.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			if unix, convErr := strconv.ParseInt(r.Timestamp, 10, 64); convErr == nil {
				parsed = time.UnixMilli(unix)
			} else {
				return models.RecognitionResult{}, fmt.Errorf("invalid timestamp %q", r.Timestamp)
			}
		}
		ts = parsed
	}
	return models.RecognitionResult{
		Status:    status,
		Message:   r.Message,
		Worker:    r.Worker.ToModel(),
		PPE:       r.PPE.ToModel(),
		Source:    r.Source,
		Timestamp: ts,
	}, nil
}

// EventFromResult builds the observer payload for a broadcastable result.
func EventFromResult(r models.RecognitionResult) RecognitionEvent {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return RecognitionEvent{
		Type:      EventWorkerRecognized,
		Worker:    WorkerFromModel(r.Worker),
		PPE:       PPEFromModel(r.PPE),
		Source:    r.Source,
		Timestamp: ts.UTC().Format(time.RFC3339),
	}
}
