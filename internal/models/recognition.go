package models

import "time"

type RecognitionStatus string

const (
	// RecognitionSuccess means a worker was matched.
	RecognitionSuccess RecognitionStatus = "SUCCESS"
	// RecognitionFailure means recognition ran and nothing matched.
	RecognitionFailure RecognitionStatus = "FAILURE"
	// RecognitionError means the outcome could not be determined.
	RecognitionError RecognitionStatus = "ERROR"
)

func (s RecognitionStatus) Valid() bool {
	switch s {
	case RecognitionSuccess, RecognitionFailure, RecognitionError:
		return true
	}
	return false
}

// RecognizedWorker is the worker reference resolved by the backend.
type RecognizedWorker struct {
	ID             string
	Name           string
	Team           string
	EmployeeNumber string
}

type Detection struct {
	Box     [4]float32 // x1, y1, x2, y2
	Label   string
	ClassID int
}

type PPEStatus struct {
	IsSafe     bool
	Detections []Detection
}

// RecognitionResult is produced per frame or per report and never persisted.
type RecognitionResult struct {
	Status    RecognitionStatus
	Message   string
	Worker    *RecognizedWorker
	PPE       *PPEStatus
	Source    string
	Timestamp time.Time
}

// Broadcastable reports whether observers should see the result.
func (r RecognitionResult) Broadcastable() bool {
	return r.Status == RecognitionSuccess && r.Worker != nil
}
