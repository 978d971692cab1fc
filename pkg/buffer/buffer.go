// Package buffer provides a generic fixed-capacity ring buffer.
package buffer

// Buffer is a thread-safe FIFO of bounded size. Writes never block; when the
// buffer is full the OverflowPolicy decides what is lost.
type Buffer[T any] interface {
	// Write adds item. It only fails once the buffer is closed.
	Write(item T) error

	// Read removes and returns the oldest item.
	Read() (T, bool)

	// ReadBatch removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Items returns a copy of the contents, oldest first, without removing
	// anything.
	Items() []T

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear removes every item. The drop callback sees each of them.
	Clear()

	Stats() *Statistics
	Close() error
}

// OverflowPolicy defines what a Write does when the buffer is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the item being written.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback receives each item lost to the overflow policy or Clear.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a ring buffer. A non-positive capacity is raised
// to 1. It fails only if metric registration fails.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	return newCircularBuffer(capacity, applyOptions(options...))
}
