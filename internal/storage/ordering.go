package storage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/facette/natsort"

	"github.com/your-org/safety/internal/models"
)

// SortByEmployeeNumber orders workers by business key. Numeric keys compare as
// integers and come first; any other key falls back to natural order so a
// malformed key never breaks listing.
func SortByEmployeeNumber(workers []models.Worker) {
	sort.SliceStable(workers, func(i, j int) bool {
		return lessEmployeeNumber(workers[i].EmployeeNumber, workers[j].EmployeeNumber)
	})
}

func lessEmployeeNumber(a, b string) bool {
	na, aNumeric := parseKey(a)
	nb, bNumeric := parseKey(b)
	switch {
	case aNumeric && bNumeric:
		if na != nb {
			return na < nb
		}
		return a < b
	case aNumeric:
		return true
	case bNumeric:
		return false
	default:
		return natsort.Compare(a, b)
	}
}

func parseKey(key string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	return n, err == nil
}
