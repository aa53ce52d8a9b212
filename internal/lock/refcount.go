package locking

// RefCount counts the holders of a shared handle. The handle is released
// by whoever drops the count to zero.

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrRefCountUnderflow = errors.New("locking: refcount dropped below zero")

type RefCount struct {
	count atomic.Int32
}

// NewRefCount starts at one: the creator holds the first reference.
func NewRefCount() *RefCount {
	r := &RefCount{}
	r.count.Store(1)
	return r
}

func (r *RefCount) Inc() int32 {
	return r.count.Add(1)
}

// Dec drops one reference and reports whether it was the last one.
func (r *RefCount) Dec() (bool, error) {
	n := r.count.Add(-1)
	if n < 0 {
		r.count.Store(0)
		return false, ErrRefCountUnderflow
	}
	return n == 0, nil
}

func (r *RefCount) Get() int32 {
	return r.count.Load()
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount: %d", r.Get())
}
