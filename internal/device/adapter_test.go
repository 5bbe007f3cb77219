package device

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"industrial-4.0-demo/internal/slmerr"
)

func newTestAdapter() (*Adapter, *SimDriver) {
	driver := NewSimDriver()
	lib := NewLibrary(nil, nil)
	return New(driver, lib), driver
}

func TestAdapter_InitializeThenCommandsFromOwnerSucceed(t *testing.T) {
	a, driver := newTestAdapter()
	require.NoError(t, a.Initialize(Config{ListMemory: 1000, SafetyMargin: 50}))

	require.NoError(t, a.PrepareListForLayer())
	require.NoError(t, a.ApplySegmentParameters(200, 1000, 5000))
	require.NoError(t, a.Jump(0, 0))
	require.NoError(t, a.Mark(100, 0))
	require.NoError(t, a.ExecuteList())

	level, err := a.CurrentListLevel()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), level, "ExecuteList resets the active list")

	batches := driver.ExecutedBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestAdapter_CallFromNonOwnerGoroutineRejected(t *testing.T) {
	a, _ := newTestAdapter()
	require.NoError(t, a.Initialize(Config{}))

	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- a.Jump(0, 0)
	}()
	wg.Wait()

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, slmerr.ErrThreadOwnership)
}

func TestAdapter_DoubleInitializeRejected(t *testing.T) {
	a, _ := newTestAdapter()
	require.NoError(t, a.Initialize(Config{}))
	err := a.Initialize(Config{})
	require.Error(t, err)
}

func TestAdapter_ShutdownIsIdempotentBeforeInitialize(t *testing.T) {
	a, _ := newTestAdapter()
	assert.NoError(t, a.Shutdown())
}

func TestAdapter_ListMemoryAndSafetyMargin(t *testing.T) {
	a, _ := newTestAdapter()
	require.NoError(t, a.Initialize(Config{ListMemory: 2048, SafetyMargin: 64}))
	assert.Equal(t, uint32(2048), a.ListMemory())
	assert.Equal(t, uint32(64), a.SafetyMargin())
}

func TestLibraryRefCount_OpenCloseCalledOnlyAtZeroToOneAndOneToZero(t *testing.T) {
	var opens, closes int
	lib := NewLibrary(
		func() error { opens++; return nil },
		func() error { closes++; return nil },
	)

	require.NoError(t, lib.rc.acquire())
	require.NoError(t, lib.rc.acquire())
	assert.Equal(t, 1, opens, "second acquire must not reopen")
	assert.Equal(t, 2, lib.RefCount())

	require.NoError(t, lib.rc.release())
	assert.Equal(t, 0, closes, "release down to 1 must not close yet")
	require.NoError(t, lib.rc.release())
	assert.Equal(t, 1, closes)
	assert.Equal(t, 0, lib.RefCount())
}

func TestLibraryRefCount_ReleaseAtZeroFails(t *testing.T) {
	lib := NewLibrary(nil, nil)
	err := lib.rc.release()
	require.Error(t, err)
	var internalErr *slmerr.Internal
	assert.ErrorAs(t, err, &internalErr)
}

func TestLibraryRefCount_OpenFailurePropagatesAndDoesNotIncrement(t *testing.T) {
	boom := errors.New("boom")
	lib := NewLibrary(func() error { return boom }, nil)
	err := lib.rc.acquire()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, lib.RefCount())
}

func TestAdapter_WaitForCompletionReportsSimDriverSuccess(t *testing.T) {
	a, _ := newTestAdapter()
	require.NoError(t, a.Initialize(Config{}))
	ok, err := a.WaitForCompletion(time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
