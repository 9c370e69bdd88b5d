package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_SetAndAdvance(t *testing.T) {
	c := NewFakeClock(1000)
	assert.Equal(t, int64(1000), c.NowMillis())

	assert.Equal(t, int64(1500), c.Advance(500))
	assert.Equal(t, int64(1500), c.NowMillis())

	c.Set(10)
	assert.Equal(t, int64(10), c.NowMillis())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	c := NewFakeClock(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Advance(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(5000), c.NowMillis())
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "op-1", g.NewID())
	assert.Equal(t, "op-2", g.NewID())

	g = NewSequentialIDs("reg")
	assert.Equal(t, "reg-1", g.NewID())
}

func TestNewRecord(t *testing.T) {
	r := NewRecord(7, 1000)
	assert.Equal(t, int64(7), r.EventID)
	assert.Equal(t, 1000+Hour, r.InstanceStartTime)
	assert.Equal(t, "Event 7", r.Title)
	assert.False(t, r.IsRepeating)

	rep := NewRepeatingInstance(7, 5*Hour)
	assert.True(t, rep.IsRepeating)
	assert.Equal(t, 5*Hour, rep.InstanceStartTime)
}

func TestLogBuffer(t *testing.T) {
	var b LogBuffer
	_, _ = b.Write([]byte("{\"level\":\"info\",\"op\":\"op-1\"}\nnot json\n{\"level\":\"debug\"}\n"))
	lines := b.Lines()
	assert.Len(t, lines, 2)
	assert.Equal(t, "op-1", lines[0]["op"])
}
