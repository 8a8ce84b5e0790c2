package coordinator

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(40 * time.Millisecond)
	defer d.Stop()

	var fired int32
	for i := 0; i < 5; i++ {
		d.Trigger("arsenal|chelsea", func() { atomic.AddInt32(&fired, 1) })
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, 10*time.Millisecond)

	// Quiet period: nothing else fires.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestDebouncer_LastFunctionWins(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var got atomic.Value
	d.Trigger("key", func() { got.Store("first") })
	d.Trigger("key", func() { got.Store("second") })

	assert.Eventually(t, func() bool {
		v, ok := got.Load().(string)
		return ok && v == "second"
	}, time.Second, 10*time.Millisecond)
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var fired int32
	d.Trigger("arsenal|chelsea", func() { atomic.AddInt32(&fired, 1) })
	d.Trigger("leeds|derby", func() { atomic.AddInt32(&fired, 1) })

	assert.Equal(t, 2, d.Pending())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var fired int32
	d.Trigger("key", func() { atomic.AddInt32(&fired, 1) })
	d.Cancel("key")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_StopRejectsFurtherTriggers(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired int32
	d.Trigger("key", func() { atomic.AddInt32(&fired, 1) })
	d.Stop()
	d.Trigger("key", func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
