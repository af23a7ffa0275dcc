package engine

import (
	"sort"
	"time"
)

// Token identifies a scheduled transition. The zero Token is never issued.
type Token struct {
	id uint64
}

// Valid reports whether the token was issued by a scheduler.
func (t Token) Valid() bool { return t.id != 0 }

type scheduled struct {
	id    uint64
	owner string
	due   time.Duration
	fn    func()
}

// Scheduler runs callbacks on the simulation clock. Each owner has at most
// one pending callback: scheduling again for the same owner cancels the
// previous one, so a state that is re-entered never receives a stale timer.
type Scheduler struct {
	now    time.Duration
	nextID uint64
	tasks  map[uint64]*scheduled
	owners map[string]uint64
}

// NewScheduler creates a scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks:  make(map[uint64]*scheduled),
		owners: make(map[string]uint64),
	}
}

// Now returns the scheduler clock.
func (s *Scheduler) Now() time.Duration { return s.now }

// Schedule runs fn once after the given delay.
func (s *Scheduler) Schedule(owner string, after time.Duration, fn func()) Token {
	s.CancelOwner(owner)
	s.nextID++
	task := &scheduled{id: s.nextID, owner: owner, due: s.now + after, fn: fn}
	s.tasks[task.id] = task
	s.owners[owner] = task.id
	return Token{id: task.id}
}

// Cancel invalidates a token. Cancelling a fired or unknown token is a no-op.
func (s *Scheduler) Cancel(tok Token) {
	task, ok := s.tasks[tok.id]
	if !ok {
		return
	}
	delete(s.tasks, tok.id)
	if s.owners[task.owner] == tok.id {
		delete(s.owners, task.owner)
	}
}

// CancelOwner invalidates whatever is pending for owner.
func (s *Scheduler) CancelOwner(owner string) {
	if id, ok := s.owners[owner]; ok {
		s.Cancel(Token{id: id})
	}
}

// Pending reports whether owner has a callback waiting.
func (s *Scheduler) Pending(owner string) bool {
	_, ok := s.owners[owner]
	return ok
}

// Advance moves the clock forward and fires due callbacks in deadline order.
// Callbacks may schedule or cancel; anything they make due also fires.
func (s *Scheduler) Advance(dt time.Duration) int {
	s.now += dt
	fired := 0
	for {
		due := s.dueTasks()
		if len(due) == 0 {
			return fired
		}
		for _, task := range due {
			if _, live := s.tasks[task.id]; !live {
				continue
			}
			s.Cancel(Token{id: task.id})
			task.fn()
			fired++
		}
	}
}

// Reset drops every pending callback without running it.
func (s *Scheduler) Reset() {
	s.tasks = make(map[uint64]*scheduled)
	s.owners = make(map[string]uint64)
}

func (s *Scheduler) dueTasks() []*scheduled {
	var due []*scheduled
	for _, task := range s.tasks {
		if task.due <= s.now {
			due = append(due, task)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})
	return due
}
