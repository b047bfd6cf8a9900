package storage

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrImageNotFound is returned by Read for an unknown reference.
var ErrImageNotFound = errors.New("image not found")

// ImageStore keeps worker reference images. A ref is the flat object name
// returned by Save; it is what the worker row stores as image_path.
type ImageStore interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Read(ctx context.Context, ref string) ([]byte, error)
	Remove(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) (bool, error)
	Ping(ctx context.Context) error
}

const defaultImageExt = ".jpg"

var (
	unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	validExt       = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)
)

// ImageFileName builds "{employeeNumber}_{uuid}{ext}". Only the extension of
// the original name is kept; it defaults to .jpg.
func ImageFileName(employeeNumber, originalName string) string {
	key := unsafeKeyChars.ReplaceAllString(employeeNumber, "_")
	if key == "" {
		key = "worker"
	}
	return key + "_" + uuid.NewString() + imageExt(originalName)
}

func imageExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !validExt.MatchString(ext) {
		return defaultImageExt
	}
	return ext
}

// ContentTypeFor guesses a MIME type from a stored image name.
func ContentTypeFor(ref string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(ref))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ValidRef rejects anything that is not a flat object name.
func ValidRef(ref string) bool {
	return ref != "" && ref != "." && ref != ".." && !strings.ContainsAny(ref, `/\`)
}
