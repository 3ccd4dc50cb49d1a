package ratelimit

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestAllowBurstThenDeny(t *testing.T) {
    now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
    l := New(1, 3, time.Minute)
    l.now = func() time.Time { return now }

    for i := 0; i < 3; i++ {
        assert.True(t, l.Allow("a"), "request %d", i)
    }
    assert.False(t, l.Allow("a"))
    assert.True(t, l.Allow("b"), "keys are independent")

    now = now.Add(time.Second)
    assert.True(t, l.Allow("a"), "refilled one token")
}

func TestSweepDropsIdle(t *testing.T) {
    now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
    l := New(5, 5, time.Minute)
    l.now = func() time.Time { return now }

    l.Allow("old")
    now = now.Add(2 * time.Minute)
    l.Allow("fresh")

    assert.Equal(t, 1, l.Sweep())
    assert.Equal(t, 1, l.Len())
}
