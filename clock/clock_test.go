package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case fired := <-ch:
		assert.Equal(t, epoch.Add(time.Second), fired)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestFakeNonPositiveDurationFiresImmediately(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("expected immediate fire")
	}
	c.Sleep(-time.Second)
	assert.Equal(t, 0, c.PendingCount())
}

func TestFakeSleepWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep did not return")
	}
	require.Equal(t, epoch.Add(time.Minute), c.Now())
}

func TestRealClock(t *testing.T) {
	c := Real()
	before := time.Now()
	<-c.After(time.Millisecond)
	assert.False(t, c.Now().Before(before))
}
