package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArena_SerializesSameKey(t *testing.T) {
	a := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := a.Lock("mango-1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, counter)
	assert.Equal(t, 1, a.Len())
}

func TestArena_DifferentKeysDoNotBlock(t *testing.T) {
	a := New()
	unlockA := a.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := a.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
