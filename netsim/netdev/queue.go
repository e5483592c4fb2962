// SPDX-License-Identifier: GPL-3.0-or-later

package netdev

// Queue is a drop-tail FIFO of [*Frame].
//
// Construct using [NewQueue].
type Queue struct {
	// frames contains the queued frames.
	frames []*Frame

	// limit is the maximum number of frames.
	limit int
}

// NewQueue creates a new [*Queue] holding at most limit frames.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Enqueue appends the frame and returns false when the queue is full.
func (q *Queue) Enqueue(frame *Frame) bool {
	if len(q.frames) >= q.limit {
		return false
	}
	q.frames = append(q.frames, frame)
	return true
}

// Dequeue removes the oldest frame.
func (q *Queue) Dequeue() (*Frame, bool) {
	if len(q.frames) <= 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return len(q.frames)
}
