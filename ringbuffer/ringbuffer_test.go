package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_ContiguityAndEviction(t *testing.T) {
	rb := New(3, 0)
	for lsn := uint64(1); lsn <= 5; lsn++ {
		rb.Append([]byte{byte(lsn)}, lsn)
	}

	assert.Equal(t, 3, rb.Size())
	low, high, ok := rb.LowHigh()
	assert.True(t, ok)
	assert.Equal(t, uint64(3), low)
	assert.Equal(t, uint64(5), high)
	assert.Equal(t, int(high-low+1), rb.Size())

	assert.False(t, rb.Contains(1))
	assert.False(t, rb.Contains(2))
	assert.True(t, rb.Contains(3))
	assert.True(t, rb.Contains(5))

	data, ok := rb.Get(4)
	assert.True(t, ok)
	assert.Equal(t, []byte{4}, data)

	_, ok = rb.Get(2)
	assert.False(t, ok)
}

func TestRingBuffer_ByteBudget(t *testing.T) {
	rb := New(0, 10)
	rb.Append(make([]byte, 4), 1)
	rb.Append(make([]byte, 4), 2)
	rb.Append(make([]byte, 4), 3)

	assert.LessOrEqual(t, rb.Bytes(), 10)
	assert.False(t, rb.Contains(1))
}

func TestRingBuffer_ZeroConsumersStillRecords(t *testing.T) {
	rb := New(10, 0)
	rb.Append([]byte("x"), 1)
	assert.Equal(t, 1, rb.Size())
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := New(10, 0)
	rb.Append([]byte("x"), 1)
	rb.Reset()
	assert.Equal(t, 0, rb.Size())
	assert.Equal(t, 0, rb.Bytes())
	assert.False(t, rb.Contains(1))
}
