package sim

import (
	"container/heap"
	"fmt"
	"time"
)

type EventId uint64

type event struct {
	id    EventId
	at    time.Duration
	seq   uint64
	fn    func()
	index int
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Scheduler is a single-threaded discrete-event loop over logical time.
// Every callback runs to completion before the next one starts; events
// scheduled for the same instant run in the order they were scheduled.
type Scheduler struct {
	now     time.Duration
	queue   eventQueue
	pending map[EventId]*event
	lastId  EventId
	seq     uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: make(map[EventId]*event),
	}
}

func (s *Scheduler) Now() time.Duration {
	return s.now
}

func (s *Scheduler) Schedule(delay time.Duration, fn func()) EventId {
	if delay < 0 {
		panic(fmt.Sprintf("sim: negative delay %v", delay))
	}
	if fn == nil {
		panic("sim: nil event handler")
	}
	s.lastId++
	s.seq++
	e := &event{id: s.lastId, at: s.now + delay, seq: s.seq, fn: fn}
	heap.Push(&s.queue, e)
	s.pending[e.id] = e
	return e.id
}

func (s *Scheduler) ScheduleNow(fn func()) EventId {
	return s.Schedule(0, fn)
}

// Cancel removes a pending event. It returns false when the event already
// ran or was cancelled.
func (s *Scheduler) Cancel(id EventId) bool {
	e, ok := s.pending[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, e.index)
	delete(s.pending, id)
	return true
}

func (s *Scheduler) IsPending(id EventId) bool {
	_, ok := s.pending[id]
	return ok
}

func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// NextTime returns the time of the earliest pending event.
func (s *Scheduler) NextTime() (time.Duration, bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0].at, true
}

// Step runs the earliest pending event and reports whether one ran.
func (s *Scheduler) Step() bool {
	if len(s.queue) == 0 {
		return false
	}
	e := heap.Pop(&s.queue).(*event)
	delete(s.pending, e.id)
	s.now = e.at
	e.fn()
	return true
}

// Run drains the queue. Periodic producers keep it non-empty, so bound
// such runs with RunUntil.
func (s *Scheduler) Run() {
	for s.Step() {
	}
}

// RunUntil runs every event scheduled at or before t and leaves the clock at t.
func (s *Scheduler) RunUntil(t time.Duration) {
	for {
		next, ok := s.NextTime()
		if !ok || next > t {
			break
		}
		s.Step()
	}
	if t > s.now {
		s.now = t
	}
}

func (s *Scheduler) RunFor(d time.Duration) {
	s.RunUntil(s.now + d)
}
