package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
	// capped at ten minutes
	assert.Equal(t, 600*time.Second, Backoff(20))
}

func TestPermanent(t *testing.T) {
	base := errors.New("contract violated")

	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(Permanent(base)))

	// wrapping preserves the mark and the chain
	wrapped := fmt.Errorf("handler failed: %w", Permanent(base))
	assert.True(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, base)
}

func TestTaskFinalAttempt(t *testing.T) {
	task := &Task{MaxAttempts: 3}

	task.Attempts = 0
	assert.False(t, task.FinalAttempt())
	task.Attempts = 1
	assert.False(t, task.FinalAttempt())
	task.Attempts = 2
	assert.True(t, task.FinalAttempt())
}
