package sim

import (
	"sort"
	"time"
)

// TimerSet holds named one-shot timers for a single procedure owner.
type TimerSet struct {
	sched  *Scheduler
	timers map[string]EventId
	fired  map[string]int
}

func NewTimerSet(sched *Scheduler) *TimerSet {
	return &TimerSet{
		sched:  sched,
		timers: make(map[string]EventId),
		fired:  make(map[string]int),
	}
}

// Arm starts the named timer. An already armed timer with the same name is
// cancelled first.
func (t *TimerSet) Arm(name string, delay time.Duration, fn func()) {
	t.Cancel(name)
	var id EventId
	id = t.sched.Schedule(delay, func() {
		if cur, ok := t.timers[name]; !ok || cur != id {
			return
		}
		delete(t.timers, name)
		t.fired[name]++
		fn()
	})
	t.timers[name] = id
}

func (t *TimerSet) Cancel(name string) bool {
	id, ok := t.timers[name]
	if !ok {
		return false
	}
	delete(t.timers, name)
	return t.sched.Cancel(id)
}

func (t *TimerSet) IsArmed(name string) bool {
	_, ok := t.timers[name]
	return ok
}

// Armed returns the names of all armed timers, sorted.
func (t *TimerSet) Armed() []string {
	names := make([]string, 0, len(t.timers))
	for name := range t.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fired returns how many times the named timer expired.
func (t *TimerSet) Fired(name string) int {
	return t.fired[name]
}

func (t *TimerSet) CancelAll() {
	for name := range t.timers {
		t.Cancel(name)
	}
}
