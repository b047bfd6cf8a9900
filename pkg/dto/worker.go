package dto

type WorkerResponse struct {
	ID             int64  `json:"id"`
	EmployeeNumber string `json:"employeeNumber"`
	Name           string `json:"name"`
	Team           string `json:"team"`
	PhotoURL       string `json:"photoUrl,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
}

type WorkerListResponse struct {
	Workers []WorkerResponse `json:"workers"`
	Total   int              `json:"total"`
}

// BulkWorkerEntry is one row of the bulk import "data" part.
type BulkWorkerEntry struct {
	EmployeeNumber string `json:"employeeNumber"`
	Name           string `json:"name"`
	Team           string `json:"team"`
	MappedFileName string `json:"mappedFileName"`
}

type BulkItemResponse struct {
	EmployeeNumber string `json:"employeeNumber"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
}

type BulkImportResponse struct {
	Created int                `json:"created"`
	Updated int                `json:"updated"`
	Skipped int                `json:"skipped"`
	Items   []BulkItemResponse `json:"items"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
