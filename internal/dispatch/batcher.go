package dispatch

import (
	"fmt"
)

// BatchPolicy bounds how a run is split. MaxBatches <= 0 disables the cap.
type BatchPolicy struct {
	Size       int
	MaxBatches int
}

// PolicyError is returned when a run needs more batches than the policy allows
// and the caller has no priority access.
type PolicyError struct {
	Batches    int
	MaxBatches int
	BatchSize  int
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("El envío de mensajes está limitado a %d lotes de %d mensajes cada uno (%d en total). Actualmente hay %d lotes.",
		e.MaxBatches, e.BatchSize, e.MaxBatches*e.BatchSize, e.Batches)
}

// Split cuts items into consecutive chunks of at most size elements.
// Every chunk but the last has exactly size elements and order is kept.
func Split[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

// Plan splits items and enforces the batch cap unless priority is set.
func (p BatchPolicy) Plan(items []Item, priority bool) ([][]Item, error) {
	batches := Split(items, p.Size)
	if !priority && p.MaxBatches > 0 && len(batches) > p.MaxBatches {
		return nil, &PolicyError{Batches: len(batches), MaxBatches: p.MaxBatches, BatchSize: p.Size}
	}
	return batches, nil
}
