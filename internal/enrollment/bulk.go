package enrollment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/safety/internal/models"
)

type BulkOutcome string

const (
	BulkCreated BulkOutcome = "created"
	BulkUpdated BulkOutcome = "updated"
	BulkSkipped BulkOutcome = "skipped"
)

// UploadedFile is one file of a bulk upload, keyed by its original name.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type BulkItem struct {
	Index          int
	EmployeeNumber string
	Outcome        BulkOutcome
	Err            error
}

type BulkResult struct {
	Items   []BulkItem
	Created int
	Updated int
	Skipped int
}

// BulkImport upserts every entry independently. An entry whose mapped file is
// missing updates an existing worker's name and team, or is skipped if the
// worker is new. Failed items are logged and skipped; they never affect the
// others. progress, if set, is called once per finished item.
func (c *Coordinator) BulkImport(ctx context.Context, entries []models.EnrollmentRequest, files map[string]UploadedFile, progress func(BulkItem)) BulkResult {
	items := make([]BulkItem, len(entries))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.bulkConcurrency)

	for i, entry := range entries {
		i, entry := i, entry
		if f, ok := files[entry.MappedFileName]; ok && entry.MappedFileName != "" {
			entry.Image = f.Data
			entry.ImageName = f.Name
			entry.ContentType = f.ContentType
		}

		g.Go(func() error {
			item := c.importOne(gctx, entry)
			item.Index = i
			if item.Err != nil {
				slog.Warn("bulk import item skipped",
					"index", i,
					"employee_number", item.EmployeeNumber,
					"name", entry.Name,
					"error", item.Err,
				)
			}

			mu.Lock()
			items[i] = item
			if progress != nil {
				progress(item)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := BulkResult{Items: items}
	for _, it := range items {
		switch it.Outcome {
		case BulkCreated:
			res.Created++
		case BulkUpdated:
			res.Updated++
		default:
			res.Skipped++
		}
	}
	return res
}

var errNoImage = errors.New("no image file for new worker")

func (c *Coordinator) importOne(ctx context.Context, req models.EnrollmentRequest) (item BulkItem) {
	req.EmployeeNumber = strings.TrimSpace(req.EmployeeNumber)
	item = BulkItem{EmployeeNumber: req.EmployeeNumber, Outcome: BulkSkipped}
	defer func() { record("bulk", item.Err) }()

	if req.EmployeeNumber == "" {
		item.Err = invalid("employee number is required")
		return item
	}
	if err := ctx.Err(); err != nil {
		item.Err = err
		return item
	}

	unlock := c.locks.Lock(req.EmployeeNumber)
	defer unlock()

	existing, err := c.store.GetWorkerByEmployeeNumber(ctx, req.EmployeeNumber)
	if err != nil {
		item.Err = err
		return item
	}

	switch {
	case existing != nil && req.HasImage():
		_, err = c.enroll(ctx, req, existing)
		item.Outcome = BulkUpdated
	case existing != nil:
		_, err = c.updateProfile(ctx, existing, existing.EmployeeNumber, req.Name, req.Team)
		item.Outcome = BulkUpdated
	case req.HasImage():
		_, err = c.enroll(ctx, req, nil)
		item.Outcome = BulkCreated
	default:
		err = errNoImage
	}
	if err != nil {
		item.Outcome = BulkSkipped
		item.Err = err
	}
	return item
}
