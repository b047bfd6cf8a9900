package recognition

import "fmt"

// CommunicationError means the backend could not be reached or answered
// with something that is not a valid reply.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("recognition backend %s: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// ExtractionError means the backend answered but could not produce an
// embedding from the image (no face, undecodable image, bad vector).
type ExtractionError struct {
	Message string
}

func (e *ExtractionError) Error() string {
	return "embedding extraction failed: " + e.Message
}
