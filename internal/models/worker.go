package models

import (
	"time"
)

type WorkerStatus string

const (
	WorkerStatusWorking WorkerStatus = "WORKING"
	WorkerStatusResting WorkerStatus = "RESTING"
	WorkerStatusOffWork WorkerStatus = "OFF_WORK"
)

// ParseWorkerStatus accepts only the enumerated statuses.
func ParseWorkerStatus(s string) (WorkerStatus, bool) {
	switch WorkerStatus(s) {
	case WorkerStatusWorking, WorkerStatusResting, WorkerStatusOffWork:
		return WorkerStatus(s), true
	}
	return "", false
}

// Worker is an enrolled identity. ImagePath and Embedding are always written
// together and derive from the same source image.
type Worker struct {
	ID             int64        `json:"id" db:"id"`
	EmployeeNumber string       `json:"employee_number" db:"employee_number"`
	Name           string       `json:"name" db:"name"`
	Team           string       `json:"team" db:"team"`
	ImagePath      string       `json:"image_path" db:"image_path"`
	Embedding      []float32    `json:"-" db:"face_vector"`
	Status         WorkerStatus `json:"status" db:"status"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// EnrollmentRequest is the input of register, update and bulk import.
// MappedFileName pairs a bulk metadata row with an uploaded file.
type EnrollmentRequest struct {
	EmployeeNumber string
	Name           string
	Team           string
	Image          []byte
	ImageName      string
	ContentType    string
	MappedFileName string
}

func (r EnrollmentRequest) HasImage() bool {
	return len(r.Image) > 0
}
