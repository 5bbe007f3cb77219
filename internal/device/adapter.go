// Package device wraps the galvo-scanner card behind the minimal,
// strictly-ordered, single-owner capability set the consumer needs. The
// underlying driver is not thread-safe: the adapter records which
// goroutine owns it on Initialize and asserts that identity on every
// later call — the same discipline the source's Scanner::assertOwnerThread
// enforces against a single OS thread.
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/petermattis/goid"

	"industrial-4.0-demo/internal/slmerr"
)

// libraryRefCount centralizes the process-wide device library's open/close
// lifecycle behind a reference counter: only the 0->1 and 1->0
// transitions call into the real library.
type libraryRefCount struct {
	mu    sync.Mutex
	count int
	open  func() error
	close func() error
}

func (l *libraryRefCount) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 && l.open != nil {
		if err := l.open(); err != nil {
			return err
		}
	}
	l.count++
	return nil
}

func (l *libraryRefCount) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return &slmerr.Internal{Reason: "device library release with zero refcount"}
	}
	l.count--
	if l.count == 0 && l.close != nil {
		return l.close()
	}
	return nil
}

func (l *libraryRefCount) refCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Driver is the opaque vendor galvo driver the Adapter wraps. It is never
// safe for concurrent use; Adapter enforces single-goroutine ownership on
// its behalf.
type Driver interface {
	Open() error
	Close() error
	ResetListLevel()
	SetSegmentParameters(powerW, markSpeedMMPerS, jumpSpeedMMPerS float64) error
	Jump(x, y int32) error
	Mark(x, y int32) error
	Delay(ms uint32) error
	CurrentListLevel() uint32
	ExecuteList() error
	WaitForCompletion(timeout time.Duration) (bool, error)
	DisableLaser() error
	ResetError() error
}

// Config configures one Adapter's owning Driver instance.
type Config struct {
	ListMemory   uint32
	SafetyMargin uint32
}

// Library is the process-wide reference counter around the device
// driver's open/close lifecycle. Production code shares one package-level
// instance across every Adapter the process creates (there is, per
// spec.md, only ever one active at a time, but the refcount is what
// makes repeated Acquire/Release pairs across restarts of the coordinator
// safe).
type Library struct{ rc *libraryRefCount }

// NewLibrary wraps open/close hooks into the real driver library behind a
// reference counter.
func NewLibrary(open, close func() error) *Library {
	return &Library{rc: &libraryRefCount{open: open, close: close}}
}

// RefCount returns the current open count, used by tests to verify §8
// invariant 6 (post-shutdown refcount equals pre-acquire refcount).
func (l *Library) RefCount() int { return l.rc.refCount() }

// Adapter is the single-goroutine-owned capability set spec.md §4.4
// requires. Every exported method except Acquire, Release, Initialize,
// ListMemory and SafetyMargin asserts the calling goroutine equals the
// goroutine that called Initialize.
type Adapter struct {
	driver Driver
	lib    *Library

	mu          sync.Mutex
	initialized bool
	ownerSet    bool
	ownerGoid   int64

	cfg Config
}

// New wraps driver behind a single-owner Adapter, using lib to manage the
// process-wide driver library's open/close lifecycle.
func New(driver Driver, lib *Library) *Adapter {
	return &Adapter{driver: driver, lib: lib}
}

// Acquire increments the process-wide device library's reference count.
// It does not check the owner goroutine, so it may be called before
// Initialize establishes an owner.
func (a *Adapter) Acquire() error { return a.lib.rc.acquire() }

// Release decrements the process-wide device library's reference count,
// closing the library when it reaches zero.
func (a *Adapter) Release() error { return a.lib.rc.release() }

// Initialize must be called on the goroutine that will own the adapter
// for its whole lifetime; that goroutine's identity is recorded and
// checked on every later call.
func (a *Adapter) Initialize(cfg Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return &slmerr.Internal{Reason: "device adapter already initialized"}
	}
	if err := a.driver.Open(); err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	a.cfg = cfg
	a.ownerGoid = goid.Get()
	a.ownerSet = true
	a.initialized = true
	return nil
}

func (a *Adapter) assertOwner(op string) error {
	if !a.ownerSet || goid.Get() != a.ownerGoid {
		return fmt.Errorf("%s: %w", op, slmerr.ErrThreadOwnership)
	}
	return nil
}

// Shutdown closes the device. Idempotent; asserts the owner goroutine.
func (a *Adapter) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil
	}
	if err := a.assertOwner("Shutdown"); err != nil {
		return err
	}
	err := a.driver.Close()
	a.initialized = false
	a.ownerSet = false
	return err
}

// PrepareListForLayer resets the pending command buffer and opens a fresh
// list. It must be called before queuing a new layer's commands.
func (a *Adapter) PrepareListForLayer() error {
	if err := a.assertOwner("PrepareListForLayer"); err != nil {
		return err
	}
	a.driver.ResetListLevel()
	return nil
}

// ApplySegmentParameters sets the three scalars that every subsequent
// Jump/Mark uses until changed again.
func (a *Adapter) ApplySegmentParameters(powerW, markSpeedMMPerS, jumpSpeedMMPerS float64) error {
	if err := a.assertOwner("ApplySegmentParameters"); err != nil {
		return err
	}
	return a.driver.SetSegmentParameters(powerW, markSpeedMMPerS, jumpSpeedMMPerS)
}

// Jump queues a jump-move command.
func (a *Adapter) Jump(x, y int32) error {
	if err := a.assertOwner("Jump"); err != nil {
		return err
	}
	return a.driver.Jump(x, y)
}

// Mark queues a mark (laser-on move) command.
func (a *Adapter) Mark(x, y int32) error {
	if err := a.assertOwner("Mark"); err != nil {
		return err
	}
	return a.driver.Mark(x, y)
}

// Delay queues a delay command.
func (a *Adapter) Delay(ms uint32) error {
	if err := a.assertOwner("Delay"); err != nil {
		return err
	}
	return a.driver.Delay(ms)
}

// CurrentListLevel returns the number of commands queued in the active
// buffer.
func (a *Adapter) CurrentListLevel() (uint32, error) {
	if err := a.assertOwner("CurrentListLevel"); err != nil {
		return 0, err
	}
	return a.driver.CurrentListLevel(), nil
}

// ListMemory returns the configured list size, used by the scheduler to
// decide when to flush a batch early.
func (a *Adapter) ListMemory() uint32 { return a.cfg.ListMemory }

// SafetyMargin returns the configured safety margin below ListMemory at
// which the scheduler proactively flushes.
func (a *Adapter) SafetyMargin() uint32 { return a.cfg.SafetyMargin }

// ExecuteList closes the active list and begins execution.
func (a *Adapter) ExecuteList() error {
	if err := a.assertOwner("ExecuteList"); err != nil {
		return err
	}
	return a.driver.ExecuteList()
}

// WaitForCompletion blocks until the device finishes the active list or
// timeout elapses, returning true iff it completed in time.
func (a *Adapter) WaitForCompletion(timeout time.Duration) (bool, error) {
	if err := a.assertOwner("WaitForCompletion"); err != nil {
		return false, err
	}
	return a.driver.WaitForCompletion(timeout)
}

// DisableLaser forces laser output to zero, unconditionally.
func (a *Adapter) DisableLaser() error {
	if err := a.assertOwner("DisableLaser"); err != nil {
		return err
	}
	return a.driver.DisableLaser()
}

// ResetError clears a latched device error condition.
func (a *Adapter) ResetError() error {
	if err := a.assertOwner("ResetError"); err != nil {
		return err
	}
	return a.driver.ResetError()
}
