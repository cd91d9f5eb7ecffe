package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"navisol/pkg/domain"
)

// nextVersionLabel derives the label of a new version from the labels already
// issued for the entity.
func nextVersionLabel(kind domain.LibraryKind, existing []string, now time.Time) string {
	switch kind {
	case domain.LibraryBoatModel:
		return nextSemverMinor(existing)
	case domain.LibraryCatalog:
		return nextYearSequence(existing, now.Year())
	default:
		return nextSequential(existing)
	}
}

func nextSemverMinor(existing []string) string {
	major, minor, found := 0, 0, false
	for _, label := range existing {
		parts := strings.Split(label, ".")
		if len(parts) != 3 {
			continue
		}
		ma, err1 := strconv.Atoi(parts[0])
		mi, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		if !found || ma > major || (ma == major && mi > minor) {
			major, minor, found = ma, mi, true
		}
	}
	if !found {
		return "1.0.0"
	}
	return fmt.Sprintf("%d.%d.0", major, minor+1)
}

func nextYearSequence(existing []string, year int) string {
	prefix := strconv.Itoa(year) + "."
	seq := 0
	for _, label := range existing {
		if !strings.HasPrefix(label, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(label, prefix)); err == nil && n > seq {
			seq = n
		}
	}
	return fmt.Sprintf("%d.%d", year, seq+1)
}

func nextSequential(existing []string) string {
	max := 0
	for _, label := range existing {
		if n, err := strconv.Atoi(label); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}
