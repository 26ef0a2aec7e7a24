package cloud115

import "context"

// fetchPage produces the next page of a listing. more reports whether
// another page follows; the closure owns the cursor state (offset or page
// number).
type fetchPage[T any] func(ctx context.Context) (items []T, more bool, err error)

// Iter is a lazy cursor over a paginated remote listing. Pages are fetched
// only as the consumer advances, so memory stays bounded by one page
// regardless of listing size, and no work continues once the consumer stops
// calling Next. Iteration order is the remote service's order.
//
// Usage follows the bufio.Scanner shape:
//
//	it := client.Storage().List("0")
//	for it.Next(ctx) {
//		entry := it.Item()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// An Iter is single-use; call the listing method again to restart.
// It must not be shared across goroutines.
type Iter[T any] struct {
	fetch fetchPage[T]
	buf   []T
	idx   int
	cur   T
	done  bool
	err   error
}

func newIter[T any](fetch fetchPage[T]) *Iter[T] {
	return &Iter[T]{fetch: fetch}
}

// Next advances to the next item, fetching the next page when the buffered
// one is exhausted. It returns false at the end of the listing or on error;
// check Err to tell the two apart.
func (it *Iter[T]) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}

	for it.idx >= len(it.buf) {
		if it.done {
			return false
		}

		items, more, err := it.fetch(ctx)
		if err != nil {
			it.err = err
			return false
		}

		// An empty page ends iteration regardless of more, so a
		// misreporting server cannot spin the cursor forever.
		it.buf, it.idx = items, 0
		it.done = !more || len(items) == 0
	}

	it.cur = it.buf[it.idx]
	it.idx++

	return true
}

// Item returns the item Next advanced to. Only valid after a true Next.
func (it *Iter[T]) Item() T {
	return it.cur
}

// Err returns the error that ended iteration, or nil for normal exhaustion.
func (it *Iter[T]) Err() error {
	return it.err
}

// Collect drains the remaining items into a slice. Convenience for callers
// that want the whole listing and accept unbounded memory.
func (it *Iter[T]) Collect(ctx context.Context) ([]T, error) {
	var items []T
	for it.Next(ctx) {
		items = append(items, it.Item())
	}

	return items, it.Err()
}
