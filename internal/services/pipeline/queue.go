package pipeline

import (
	"errors"

	"github.com/ternarybob/promolink/internal/models"
)

// ErrQueueFull is returned when the publish queue cannot take more offers
var ErrQueueFull = errors.New("publish queue is full")

// Queue buffers offers waiting for the publish worker. It lives in memory;
// offers still queued at shutdown are lost.
type Queue struct {
	ch chan models.QueuedOffer
}

// NewQueue creates a queue holding up to size offers
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan models.QueuedOffer, size)}
}

// Enqueue adds an offer without blocking
func (q *Queue) Enqueue(offer models.QueuedOffer) error {
	select {
	case q.ch <- offer:
		return nil
	default:
		return ErrQueueFull
	}
}

// C returns the receive side of the queue
func (q *Queue) C() <-chan models.QueuedOffer {
	return q.ch
}

// Len is the number of offers waiting
func (q *Queue) Len() int {
	return len(q.ch)
}
