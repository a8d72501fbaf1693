package memory

import (
	"sync"

	domainerrors "electsys/contexts/enrollment/election-engine/domain/errors"
	"electsys/contexts/enrollment/election-engine/ports"
)

// LockRegistry holds one mutex per provisioned student. Locks are created
// when the student record is created and live as long as the student does;
// a missing lock means the student was never provisioned, not "not found".
type LockRegistry struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *LockRegistry) Provision(studentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locks[studentID]; !ok {
		r.locks[studentID] = &sync.Mutex{}
	}
}

// WithStudentLock runs fn while holding the student's mutex. The lock is
// released unconditionally, including when fn fails.
func (r *LockRegistry) WithStudentLock(studentID string, fn func() error) error {
	r.mu.RLock()
	lock, ok := r.locks[studentID]
	r.mu.RUnlock()
	if !ok {
		return domainerrors.ErrUnknownStudent
	}

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

var _ ports.StudentLocks = (*LockRegistry)(nil)
