package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustion(t *testing.T) {
	tb := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d within capacity", i)
	}
	assert.False(t, tb.Allow(), "bucket drained")
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(1, 1000)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	// 1000/s 的补充速率下等一秒出头必然有新令牌
	time.Sleep(1100 * time.Millisecond)
	assert.True(t, tb.Allow())
}

func TestTokenBucketDoesNotOverfill(t *testing.T) {
	tb := NewTokenBucket(2, 1000)
	time.Sleep(1100 * time.Millisecond)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "capacity caps the refill")
}
