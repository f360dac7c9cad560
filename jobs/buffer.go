package jobs

import (
	"context"
)

// BatchBuffer accumulates items and hands them to flush in fixed-size batches.
// Not safe for concurrent use; each job owns its buffer.
type BatchBuffer[T any] struct {
	size    int
	items   []T
	flush   func(ctx context.Context, batch []T) error
	flushes int
}

// NewBatchBuffer creates a buffer draining every size items. size < 1 is treated as 1.
func NewBatchBuffer[T any](size int, flush func(ctx context.Context, batch []T) error) *BatchBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &BatchBuffer[T]{
		size:  size,
		items: make([]T, 0, size),
		flush: flush,
	}
}

// Add appends item and drains when the buffer is full
func (b *BatchBuffer[T]) Add(ctx context.Context, item T) error {
	b.items = append(b.items, item)
	if len(b.items) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush drains whatever is buffered. An empty buffer is a no-op.
// On error the items stay buffered.
func (b *BatchBuffer[T]) Flush(ctx context.Context) error {
	if len(b.items) == 0 {
		return nil
	}
	if err := b.flush(ctx, b.items); err != nil {
		return err
	}
	b.flushes++
	b.items = make([]T, 0, b.size)
	return nil
}

// Len returns the number of buffered items
func (b *BatchBuffer[T]) Len() int { return len(b.items) }

// Flushes returns how many batches were drained successfully
func (b *BatchBuffer[T]) Flushes() int { return b.flushes }
