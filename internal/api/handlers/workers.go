package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/safety/internal/enrollment"
	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/pkg/dto"
)

// WorkerService is implemented by enrollment.Coordinator.
type WorkerService interface {
	Register(ctx context.Context, req models.EnrollmentRequest) (*models.Worker, error)
	Update(ctx context.Context, id int64, req models.EnrollmentRequest) (*models.Worker, error)
	BulkImport(ctx context.Context, entries []models.EnrollmentRequest, files map[string]enrollment.UploadedFile, progress func(enrollment.BulkItem)) enrollment.BulkResult
	SetStatus(ctx context.Context, id int64, status string) error
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) (int, error)
	List(ctx context.Context) ([]models.Worker, error)
	Get(ctx context.Context, id int64) (*models.Worker, error)
}

const photoField = "photoFile"

type WorkerHandler struct {
	svc            WorkerService
	imageURLPrefix string
	maxImageBytes  int64
}

func NewWorkerHandler(svc WorkerService, imageURLPrefix string, maxImageBytes int64) *WorkerHandler {
	return &WorkerHandler{
		svc:            svc,
		imageURLPrefix: strings.TrimRight(imageURLPrefix, "/"),
		maxImageBytes:  maxImageBytes,
	}
}

func (h *WorkerHandler) toResponse(w *models.Worker) dto.WorkerResponse {
	resp := dto.WorkerResponse{
		ID:             w.ID,
		EmployeeNumber: w.EmployeeNumber,
		Name:           w.Name,
		Team:           w.Team,
		Status:         string(w.Status),
	}
	if w.ImagePath != "" {
		resp.PhotoURL = h.imageURLPrefix + "/" + w.ImagePath
	}
	if !w.CreatedAt.IsZero() {
		resp.CreatedAt = w.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *WorkerHandler) List(c *gin.Context) {
	workers, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.WorkerResponse, 0, len(workers))
	for i := range workers {
		resp = append(resp, h.toResponse(&workers[i]))
	}
	c.JSON(http.StatusOK, dto.WorkerListResponse{Workers: resp, Total: len(resp)})
}

func (h *WorkerHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	w, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(w))
}

// Register accepts multipart fields employeeNumber, name, team and photoFile.
func (h *WorkerHandler) Register(c *gin.Context) {
	req, ok := h.bindEnrollment(c)
	if !ok {
		return
	}
	w, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.toResponse(w))
}

// Update takes the same form as Register; photoFile is optional.
func (h *WorkerHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, ok := h.bindEnrollment(c)
	if !ok {
		return
	}
	w, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(w))
}

func (h *WorkerHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// BatchDelete takes a JSON array of ids. Unknown ids are ignored.
func (h *WorkerHandler) BatchDelete(c *gin.Context) {
	var ids []int64
	if err := c.ShouldBindJSON(&ids); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a JSON array of worker ids"})
		return
	}
	if _, err := h.svc.DeleteMany(c.Request.Context(), ids); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Bulk accepts a "data" part holding a JSON array of entries and any number
// of "files" parts matched to entries by mappedFileName.
func (h *WorkerHandler) Bulk(c *gin.Context) {
	raw := c.PostForm("data")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data field required"})
		return
	}
	var rows []dto.BulkWorkerEntry
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data: " + err.Error()})
		return
	}

	files := map[string]enrollment.UploadedFile{}
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["files"] {
			data, err := readUpload(fh, h.maxImageBytes)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			files[fh.Filename] = enrollment.UploadedFile{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			}
		}
	}

	entries := make([]models.EnrollmentRequest, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.EnrollmentRequest{
			EmployeeNumber: r.EmployeeNumber,
			Name:           r.Name,
			Team:           r.Team,
			MappedFileName: r.MappedFileName,
		})
	}

	res := h.svc.BulkImport(c.Request.Context(), entries, files, nil)

	resp := dto.BulkImportResponse{
		Created: res.Created,
		Updated: res.Updated,
		Skipped: res.Skipped,
		Items:   make([]dto.BulkItemResponse, 0, len(res.Items)),
	}
	for _, it := range res.Items {
		item := dto.BulkItemResponse{EmployeeNumber: it.EmployeeNumber, Outcome: string(it.Outcome)}
		if it.Err != nil {
			item.Reason = it.Err.Error()
		}
		resp.Items = append(resp.Items, item)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *WorkerHandler) SetStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h *WorkerHandler) bindEnrollment(c *gin.Context) (models.EnrollmentRequest, bool) {
	req := models.EnrollmentRequest{
		EmployeeNumber: c.PostForm("employeeNumber"),
		Name:           c.PostForm("name"),
		Team:           c.PostForm("team"),
	}

	fh, err := c.FormFile(photoField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return req, true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
		return req, false
	}

	data, err := readUpload(fh, h.maxImageBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	req.Image = data
	req.ImageName = fh.Filename
	req.ContentType = fh.Header.Get("Content-Type")
	return req, true
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if limit > 0 && fh.Size > limit {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, limit)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return data, nil
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid worker id"})
		return 0, false
	}
	return id, true
}
