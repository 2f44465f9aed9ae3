package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestAllowRefills(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	l := New(2, time.Minute)
	l.now = c.now

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys have separate buckets")

	c.t = c.t.Add(30 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.Equal(t, 30*time.Second, l.RetryAfter())
}

func TestZeroLimitDeniesEverything(t *testing.T) {
	l := New(0, time.Second)
	assert.False(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestPrune(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	l := New(5, time.Second)
	l.now = c.now
	l.Allow("a")
	c.t = c.t.Add(1500 * time.Millisecond)
	l.Allow("b")
	c.t = c.t.Add(time.Second)
	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 0, l.Prune())
}

func TestRunStopsWithContext(t *testing.T) {
	l := New(1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
