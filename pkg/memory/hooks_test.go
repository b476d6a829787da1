package memory

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookQueue(t *testing.T) {
	q := newHookQueue(2, 16)

	var ran atomic.Int32

	for i := 0; i < 10; i++ {
		assert.True(t, q.submit("count", func() error {
			ran.Add(1)
			return nil
		}))
	}

	assert.True(t, q.submit("fails", func() error { return fmt.Errorf("nope") }))
	assert.True(t, q.submit("panics", func() error { panic("bad") }))

	q.wait()
	assert.Equal(t, int32(10), ran.Load())

	q.close()
	assert.False(t, q.submit("late", func() error { return nil }))
}
