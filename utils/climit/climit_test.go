package climit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func acquire(t *testing.T, cl *ConcurrencyLimit) *Token {
	tok, err := cl.Acquire(context.Background())
	assert.NoError(t, err)
	return tok
}

func TestConcurrencyLimit(t *testing.T) {
	cl := New("test", "test", 2, nil)
	event := make(chan struct{})

	var count atomic.Int32

	var t1, t2, t4, t8 *Token
	go func() {
		t1 = acquire(t, cl)
		count.Add(1)
		event <- struct{}{}
		t2 = acquire(t, cl)
		count.Add(2)
		event <- struct{}{}
		t4 = acquire(t, cl)
		count.Add(4)
		event <- struct{}{}
		t8 = acquire(t, cl)
		count.Add(8)
		event <- struct{}{}
	}()

	<-event
	<-event
	assert.Equal(t, int32(3), count.Load())
	time.Sleep(10 * time.Millisecond)
	select {
	case <-event:
		t.Fatal("unexpected event")
	default:
		// OK
	}

	// Release a token
	t2.Release()
	<-event
	assert.Equal(t, int32(7), count.Load())

	// Release the same again, nothing happens
	assert.Equal(t, time.Duration(0), t2.Release())
	time.Sleep(10 * time.Millisecond)
	select {
	case <-event:
		t.Fatal("unexpected event")
	default:
		// OK
	}
	assert.Equal(t, int32(7), count.Load())

	// Release another for the last increment
	t1.Release()
	<-event
	assert.Equal(t, int32(15), count.Load())

	t4.Release()
	t8.Release()
}

func TestConcurrencyLimitCanceled(t *testing.T) {
	cl := New("test", "canceled", 0, nil) // raised to 1
	tok := acquire(t, cl)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := cl.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	tok.Release()
	tok2 := acquire(t, cl)
	tok2.Release()
}
