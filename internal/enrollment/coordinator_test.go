package enrollment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/recognition"
	"github.com/your-org/safety/internal/storage"
)

type fixture struct {
	coord    *Coordinator
	store    *memStore
	embedder *fakeEmbedder
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	images, err := storage.NewFileImageStore(dir)
	if err != nil {
		t.Fatalf("NewFileImageStore: %v", err)
	}
	store := newMemStore()
	emb := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3, 0.4}}
	return &fixture{
		coord:    NewCoordinator(store, images, emb, 2),
		store:    store,
		embedder: emb,
		dir:      dir,
	}
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func kim(image string) models.EnrollmentRequest {
	return models.EnrollmentRequest{
		EmployeeNumber: "1001",
		Name:           "Kim",
		Team:           "A",
		Image:          []byte(image),
		ImageName:      "face1.jpg",
		ContentType:    "image/jpeg",
	}
}

func TestRegisterStoresImageAndVector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.coord.Register(ctx, kim("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, _ := f.store.GetWorkerByEmployeeNumber(ctx, "1001")
	if got == nil || got.ID != w.ID {
		t.Fatalf("expected stored worker, got %+v", got)
	}
	if got.Name != "Kim" || got.Team != "A" {
		t.Errorf("unexpected fields %+v", got)
	}
	if len(got.Embedding) != 4 || got.Embedding[0] != 0.1 {
		t.Errorf("embedding = %v", got.Embedding)
	}
	if _, err := os.Stat(filepath.Join(f.dir, got.ImagePath)); err != nil {
		t.Errorf("image %s missing on disk: %v", got.ImagePath, err)
	}
	if filepath.Ext(got.ImagePath) != ".jpg" {
		t.Errorf("image path %s lost its extension", got.ImagePath)
	}
}

func TestRegisterRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.coord.Register(ctx, kim("jpeg")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name string
		req  models.EnrollmentRequest
	}{
		{"duplicate key", kim("other")},
		{"blank key", models.EnrollmentRequest{EmployeeNumber: "  ", Image: []byte("x")}},
		{"missing image", models.EnrollmentRequest{EmployeeNumber: "2002", Name: "Lee"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := f.embedder.calls
			_, err := f.coord.Register(ctx, tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if f.embedder.calls != calls {
				t.Error("validation failure must not reach the backend")
			}
		})
	}
	if n := len(f.files(t)); n != 1 {
		t.Errorf("expected 1 file after rejected requests, found %d", n)
	}
}

func TestRegisterExtractionFailureLeavesNothing(t *testing.T) {
	for _, image := range []string{"noface", "down"} {
		t.Run(image, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.coord.Register(context.Background(), kim(image))
			if err == nil {
				t.Fatal("expected error")
			}
			if image == "noface" && !recognition.IsExtraction(err) {
				t.Errorf("expected ExtractionError, got %v", err)
			}
			if image == "down" && !recognition.IsCommunication(err) {
				t.Errorf("expected CommunicationError, got %v", err)
			}
			if f.store.count() != 0 {
				t.Errorf("expected no rows, found %d", f.store.count())
			}
			if files := f.files(t); len(files) != 0 {
				t.Errorf("expected no files, found %v", files)
			}
		})
	}
}

func TestRegisterDuplicateMissedByLookupIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.coord.Register(ctx, kim("jpeg"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	images, err := storage.NewFileImageStore(f.dir)
	if err != nil {
		t.Fatalf("NewFileImageStore: %v", err)
	}
	racing := NewCoordinator(staleLookupStore{f.store}, images, f.embedder, 1)

	_, err = racing.Register(ctx, kim("other"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	got, _ := f.store.GetWorker(ctx, first.ID)
	if got == nil || got.ImagePath != first.ImagePath {
		t.Fatalf("existing row was overwritten: %+v", got)
	}
	if files := f.files(t); len(files) != 1 || files[0] != first.ImagePath {
		t.Errorf("expected only %s on disk, found %v", first.ImagePath, files)
	}
}

func TestUpdateReplacesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.coord.Register(ctx, kim("v1"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.coord.SetStatus(ctx, w.ID, "WORKING"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.coord.Update(ctx, w.ID, kim("v2")); err != nil {
			t.Fatalf("Update #%d: %v", i+1, err)
		}
	}

	files := f.files(t)
	if len(files) != 1 {
		t.Fatalf("expected exactly one file after two updates, found %v", files)
	}
	got, _ := f.store.GetWorker(ctx, w.ID)
	if got.ImagePath != files[0] {
		t.Errorf("row points at %s, disk has %s", got.ImagePath, files[0])
	}
	if got.Status != models.WorkerStatusWorking {
		t.Errorf("update must keep status, got %s", got.Status)
	}
}

func TestUpdateFailureKeepsPreviousImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.coord.Register(ctx, kim("v1"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.coord.Update(ctx, w.ID, kim("noface")); !recognition.IsExtraction(err) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}

	files := f.files(t)
	got, _ := f.store.GetWorker(ctx, w.ID)
	if len(files) != 1 || files[0] != got.ImagePath {
		t.Errorf("expected original file %s to survive, found %v", got.ImagePath, files)
	}
}

func TestUpdateWithoutImageTouchesMetadataOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.coord.Register(ctx, kim("v1"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	calls := f.embedder.calls

	req := models.EnrollmentRequest{EmployeeNumber: "1002", Name: "Kim J", Team: "B"}
	if _, err := f.coord.Update(ctx, w.ID, req); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := f.store.GetWorker(ctx, w.ID)
	if got.EmployeeNumber != "1002" || got.Name != "Kim J" || got.ImagePath != w.ImagePath {
		t.Errorf("unexpected worker after profile update: %+v", got)
	}
	if f.embedder.calls != calls {
		t.Error("profile update must not call the backend")
	}

	if _, err := f.coord.Update(ctx, 999, req); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateRejectsTakenKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.coord.Register(ctx, kim("a"))
	other := kim("b")
	other.EmployeeNumber = "2002"
	if _, err := f.coord.Register(ctx, other); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := f.coord.Update(ctx, a.ID, models.EnrollmentRequest{EmployeeNumber: "2002", Name: "x"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSetStatusValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, _ := f.coord.Register(ctx, kim("a"))

	var ve *ValidationError
	if err := f.coord.SetStatus(ctx, w.ID, "SLEEPING"); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if err := f.coord.SetStatus(ctx, 42, "RESTING"); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestDeleteRemovesRowAndImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last *models.Worker
	for _, key := range []string{"1", "2", "3", "4", "5"} {
		req := kim("img-" + key)
		req.EmployeeNumber = key
		w, err := f.coord.Register(ctx, req)
		if err != nil {
			t.Fatalf("Register %s: %v", key, err)
		}
		last = w
	}
	if last.ID != 5 {
		t.Fatalf("expected id 5, got %d", last.ID)
	}

	if err := f.coord.Delete(ctx, 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, last.ImagePath)); !os.IsNotExist(err) {
		t.Errorf("expected image removed, stat err = %v", err)
	}
	if _, err := f.coord.Get(ctx, 5); !isNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
	if err := f.coord.Delete(ctx, 5); !isNotFound(err) {
		t.Errorf("expected NotFoundError deleting twice, got %v", err)
	}

	n, err := f.coord.DeleteMany(ctx, []int64{1, 2, 77})
	if err != nil || n != 2 {
		t.Fatalf("DeleteMany = %d, %v", n, err)
	}
	if files := f.files(t); len(files) != 2 {
		t.Errorf("expected 2 remaining files, found %v", files)
	}
}

func TestBulkImportSkipsMissingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entries := []models.EnrollmentRequest{
		{EmployeeNumber: "1001", Name: "Kim", Team: "A", MappedFileName: "kim.jpg"},
		{EmployeeNumber: "1002", Name: "Lee", Team: "A", MappedFileName: "lee.jpg"},
		{EmployeeNumber: "1003", Name: "Park", Team: "B", MappedFileName: "park.png"},
	}
	files := map[string]UploadedFile{
		"kim.jpg":  {Name: "kim.jpg", Data: []byte("kim")},
		"park.png": {Name: "park.png", Data: []byte("park")},
	}

	var mu sync.Mutex
	var seen int
	res := f.coord.BulkImport(ctx, entries, files, func(BulkItem) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	if res.Created != 2 || res.Skipped != 1 || res.Updated != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.Items[1].Outcome != BulkSkipped || !errors.Is(res.Items[1].Err, errNoImage) {
		t.Errorf("entry 2 = %+v, want skipped for missing image", res.Items[1])
	}
	if seen != 3 {
		t.Errorf("progress called %d times, want 3", seen)
	}
	if f.store.count() != 2 {
		t.Errorf("worker count = %d, want 2", f.store.count())
	}
}

func TestBulkImportUpsertsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, _ := f.coord.Register(ctx, kim("v1"))

	entries := []models.EnrollmentRequest{
		{EmployeeNumber: "1001", Name: "Kim Renamed", Team: "C"},
		{EmployeeNumber: "2001", Name: "Bad", MappedFileName: "bad.jpg"},
	}
	files := map[string]UploadedFile{"bad.jpg": {Name: "bad.jpg", Data: []byte("noface")}}

	res := f.coord.BulkImport(ctx, entries, files, nil)
	if res.Updated != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	got, _ := f.store.GetWorker(ctx, w.ID)
	if got.Name != "Kim Renamed" || got.Team != "C" || got.ImagePath != w.ImagePath {
		t.Errorf("unexpected worker %+v", got)
	}
	if files := f.files(t); len(files) != 1 {
		t.Errorf("failed item must not leave files, found %v", files)
	}
}

func TestConcurrentRegisterSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Register(ctx, kim("same"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful registration, got %d", ok)
	}
	if n := len(f.files(t)); n != 1 {
		t.Errorf("expected one file, found %d", n)
	}
	if f.coord.locks.size() != 0 {
		t.Errorf("lock entries leaked: %d", f.coord.locks.size())
	}
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
