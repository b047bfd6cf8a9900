package enrollment

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/recognition"
	"github.com/your-org/safety/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	workers map[int64]models.Worker
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, workers: make(map[int64]models.Worker)}
}

func (s *memStore) InsertWorker(_ context.Context, w *models.Worker) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workers {
		if existing.EmployeeNumber == w.EmployeeNumber {
			return 0, &pgconn.PgError{Code: "23505", ConstraintName: "workers_employee_number_key"}
		}
	}
	id := s.nextID
	s.nextID++
	cp := *w
	cp.ID = id
	cp.Status = models.WorkerStatusOffWork
	cp.CreatedAt = time.Now()
	s.workers[id] = cp
	return id, nil
}

// staleLookupStore never sees existing keys, like a second replica racing
// on the same employee number.
type staleLookupStore struct {
	*memStore
}

func (staleLookupStore) GetWorkerByEmployeeNumber(context.Context, string) (*models.Worker, error) {
	return nil, nil
}

func (s *memStore) UpdateWorkerEnrollment(_ context.Context, w *models.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workers[w.ID]
	if !ok {
		return storage.ErrNotFound
	}
	existing.EmployeeNumber, existing.Name, existing.Team = w.EmployeeNumber, w.Name, w.Team
	existing.ImagePath, existing.Embedding = w.ImagePath, w.Embedding
	s.workers[w.ID] = existing
	return nil
}

func (s *memStore) UpdateWorkerProfile(_ context.Context, id int64, employeeNumber, name, team string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workers[id]
	if !ok {
		return storage.ErrNotFound
	}
	existing.EmployeeNumber, existing.Name, existing.Team = employeeNumber, name, team
	s.workers[id] = existing
	return nil
}

func (s *memStore) UpdateWorkerStatus(_ context.Context, id int64, status models.WorkerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workers[id]
	if !ok {
		return storage.ErrNotFound
	}
	existing.Status = status
	s.workers[id] = existing
	return nil
}

func (s *memStore) GetWorker(_ context.Context, id int64) (*models.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *memStore) GetWorkerByEmployeeNumber(_ context.Context, key string) (*models.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		if w.EmployeeNumber == key {
			return &w, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListWorkers(_ context.Context) ([]models.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	storage.SortByEmployeeNumber(out)
	return out, nil
}

func (s *memStore) DeleteWorker(_ context.Context, id int64) (*models.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, nil
	}
	delete(s.workers, id)
	return &w, nil
}

func (s *memStore) DeleteWorkers(_ context.Context, ids []int64) ([]models.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Worker
	for _, id := range ids {
		if w, ok := s.workers[id]; ok {
			out = append(out, w)
			delete(s.workers, id)
		}
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// fakeEmbedder fails for images whose content is "noface" and returns
// vector for everything else.
type fakeEmbedder struct {
	mu     sync.Mutex
	vector []float32
	calls  int
}

func (e *fakeEmbedder) ExtractEmbedding(_ context.Context, image []byte, _ string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	switch string(image) {
	case "noface":
		return nil, &recognition.ExtractionError{Message: "no face detected"}
	case "down":
		return nil, &recognition.CommunicationError{Op: "vectorize", Err: context.DeadlineExceeded}
	}
	return e.vector, nil
}
