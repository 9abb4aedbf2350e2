package queue

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity caps the number of jobs waiting for a worker. Submit fails
// with ErrFull beyond it and the pool scores the doctor inline instead.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sizes the job channel. It defaults to the capacity and is
// never allowed to exceed it.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}
