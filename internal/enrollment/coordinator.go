// Package enrollment keeps a worker's reference image, embedding and row
// consistent across register, update, bulk import and delete.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/observability"
	"github.com/your-org/safety/internal/storage"
)

// WorkerStore is the subset of storage.PostgresStore the coordinator needs.
type WorkerStore interface {
	InsertWorker(ctx context.Context, w *models.Worker) (int64, error)
	UpdateWorkerEnrollment(ctx context.Context, w *models.Worker) error
	UpdateWorkerProfile(ctx context.Context, id int64, employeeNumber, name, team string) error
	UpdateWorkerStatus(ctx context.Context, id int64, status models.WorkerStatus) error
	GetWorker(ctx context.Context, id int64) (*models.Worker, error)
	GetWorkerByEmployeeNumber(ctx context.Context, employeeNumber string) (*models.Worker, error)
	ListWorkers(ctx context.Context) ([]models.Worker, error)
	DeleteWorker(ctx context.Context, id int64) (*models.Worker, error)
	DeleteWorkers(ctx context.Context, ids []int64) ([]models.Worker, error)
}

// Embedder turns an enrollment image into an embedding.
type Embedder interface {
	ExtractEmbedding(ctx context.Context, image []byte, fileName string) ([]float32, error)
}

type Coordinator struct {
	store           WorkerStore
	images          storage.ImageStore
	embedder        Embedder
	locks           *keyLock
	bulkConcurrency int
}

func NewCoordinator(store WorkerStore, images storage.ImageStore, embedder Embedder, bulkConcurrency int) *Coordinator {
	if bulkConcurrency < 1 {
		bulkConcurrency = 1
	}
	return &Coordinator{
		store:           store,
		images:          images,
		embedder:        embedder,
		locks:           newKeyLock(),
		bulkConcurrency: bulkConcurrency,
	}
}

// Register enrolls a new worker. The employee number must be unused and an
// image is required.
func (c *Coordinator) Register(ctx context.Context, req models.EnrollmentRequest) (w *models.Worker, err error) {
	defer func() { record("register", err) }()

	req.EmployeeNumber = strings.TrimSpace(req.EmployeeNumber)
	if req.EmployeeNumber == "" {
		return nil, invalid("employee number is required")
	}
	if !req.HasImage() {
		return nil, invalid("a reference image is required")
	}

	unlock := c.locks.Lock(req.EmployeeNumber)
	defer unlock()

	existing, err := c.store.GetWorkerByEmployeeNumber(ctx, req.EmployeeNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, invalid("employee number %s already exists", req.EmployeeNumber)
	}
	return c.enroll(ctx, req, nil)
}

var errKeyMoved = errors.New("employee number changed while waiting for lock")

// Update rewrites a worker's metadata. With an image the file and embedding
// are replaced too; without one they are left untouched.
func (c *Coordinator) Update(ctx context.Context, id int64, req models.EnrollmentRequest) (w *models.Worker, err error) {
	defer func() { record("update", err) }()

	req.EmployeeNumber = strings.TrimSpace(req.EmployeeNumber)
	if req.EmployeeNumber == "" {
		return nil, invalid("employee number is required")
	}

	for attempt := 0; attempt < 3; attempt++ {
		current, err := c.store.GetWorker(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, &NotFoundError{ID: id}
		}

		unlock := c.locks.Lock(current.EmployeeNumber, req.EmployeeNumber)
		w, err = c.updateLocked(ctx, id, current.EmployeeNumber, req)
		unlock()
		if errors.Is(err, errKeyMoved) {
			continue
		}
		return w, err
	}
	return nil, fmt.Errorf("update worker %d: %w", id, errKeyMoved)
}

func (c *Coordinator) updateLocked(ctx context.Context, id int64, lockedKey string, req models.EnrollmentRequest) (*models.Worker, error) {
	current, err := c.store.GetWorker(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &NotFoundError{ID: id}
	}
	if current.EmployeeNumber != lockedKey {
		return nil, errKeyMoved
	}

	if req.EmployeeNumber != current.EmployeeNumber {
		other, err := c.store.GetWorkerByEmployeeNumber(ctx, req.EmployeeNumber)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, invalid("employee number %s already exists", req.EmployeeNumber)
		}
	}

	if !req.HasImage() {
		return c.updateProfile(ctx, current, req.EmployeeNumber, req.Name, req.Team)
	}
	return c.enroll(ctx, req, current)
}

func (c *Coordinator) updateProfile(ctx context.Context, current *models.Worker, employeeNumber, name, team string) (*models.Worker, error) {
	if err := c.store.UpdateWorkerProfile(ctx, current.ID, employeeNumber, name, team); err != nil {
		return nil, c.commitError(current.ID, employeeNumber, err)
	}
	updated := *current
	updated.EmployeeNumber = employeeNumber
	updated.Name = name
	updated.Team = team
	return &updated, nil
}

// enroll stores the image, extracts its embedding and commits both with the
// row. The new file is removed if a later step fails; the previous file is
// removed only after the commit.
func (c *Coordinator) enroll(ctx context.Context, req models.EnrollmentRequest, existing *models.Worker) (*models.Worker, error) {
	name := storage.ImageFileName(req.EmployeeNumber, req.ImageName)
	ref, err := c.images.Save(ctx, name, req.Image, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	vector, err := c.embedder.ExtractEmbedding(ctx, req.Image, req.ImageName)
	if err != nil {
		c.discard(ctx, ref, req.EmployeeNumber)
		return nil, err
	}

	w := &models.Worker{
		EmployeeNumber: req.EmployeeNumber,
		Name:           req.Name,
		Team:           req.Team,
		ImagePath:      ref,
		Embedding:      vector,
		Status:         models.WorkerStatusOffWork,
	}
	if existing == nil {
		w.ID, err = c.store.InsertWorker(ctx, w)
	} else {
		w.ID = existing.ID
		w.Status = existing.Status
		w.CreatedAt = existing.CreatedAt
		err = c.store.UpdateWorkerEnrollment(ctx, w)
	}
	if err != nil {
		c.discard(ctx, ref, req.EmployeeNumber)
		return nil, c.commitError(w.ID, req.EmployeeNumber, err)
	}

	if existing != nil && existing.ImagePath != "" && existing.ImagePath != ref {
		c.discard(ctx, existing.ImagePath, req.EmployeeNumber)
	}
	return w, nil
}

func (c *Coordinator) commitError(id int64, employeeNumber string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &NotFoundError{ID: id}
	case storage.IsUniqueViolation(err):
		return invalid("employee number %s already exists", employeeNumber)
	}
	return err
}

// discard removes an image even when the request context is already done.
func (c *Coordinator) discard(ctx context.Context, ref, employeeNumber string) {
	if err := c.images.Remove(context.WithoutCancel(ctx), ref); err != nil {
		slog.Error("failed to remove reference image", "error", err, "image", ref, "employee_number", employeeNumber)
	}
}

// SetStatus changes only the status column.
func (c *Coordinator) SetStatus(ctx context.Context, id int64, status string) (err error) {
	defer func() { record("status", err) }()

	parsed, ok := models.ParseWorkerStatus(status)
	if !ok {
		return invalid("invalid status %q", status)
	}
	if err := c.store.UpdateWorkerStatus(ctx, id, parsed); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{ID: id}
		}
		return err
	}
	return nil
}

// Delete removes the row, then its reference image.
func (c *Coordinator) Delete(ctx context.Context, id int64) (err error) {
	defer func() { record("delete", err) }()

	current, err := c.store.GetWorker(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return &NotFoundError{ID: id}
	}

	unlock := c.locks.Lock(current.EmployeeNumber)
	defer unlock()

	deleted, err := c.store.DeleteWorker(ctx, id)
	if err != nil {
		return err
	}
	if deleted == nil {
		return &NotFoundError{ID: id}
	}
	if deleted.ImagePath != "" {
		c.discard(ctx, deleted.ImagePath, deleted.EmployeeNumber)
	}
	return nil
}

// DeleteMany removes every listed worker that exists and returns how many
// were removed. Unknown ids are ignored.
func (c *Coordinator) DeleteMany(ctx context.Context, ids []int64) (n int, err error) {
	defer func() { record("batch_delete", err) }()

	var keys []string
	for _, id := range ids {
		w, err := c.store.GetWorker(ctx, id)
		if err != nil {
			return 0, err
		}
		if w != nil {
			keys = append(keys, w.EmployeeNumber)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	unlock := c.locks.Lock(keys...)
	defer unlock()

	deleted, err := c.store.DeleteWorkers(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, w := range deleted {
		if w.ImagePath != "" {
			c.discard(ctx, w.ImagePath, w.EmployeeNumber)
		}
	}
	return len(deleted), nil
}

func (c *Coordinator) List(ctx context.Context) ([]models.Worker, error) {
	return c.store.ListWorkers(ctx)
}

func (c *Coordinator) Get(ctx context.Context, id int64) (*models.Worker, error) {
	w, err := c.store.GetWorker(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &NotFoundError{ID: id}
	}
	return w, nil
}

func record(operation string, err error) {
	outcome := "success"
	var ve *ValidationError
	var nf *NotFoundError
	switch {
	case err == nil:
	case errors.As(err, &ve), errors.As(err, &nf):
		outcome = "rejected"
	default:
		outcome = "failure"
	}
	observability.Enrollments.WithLabelValues(operation, outcome).Inc()
}
