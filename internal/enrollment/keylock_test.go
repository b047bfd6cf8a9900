package enrollment

import (
	"sync"
	"testing"
	"time"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	l := newKeyLock()
	unlock := l.Lock("1001")

	acquired := make(chan struct{})
	go func() {
		u := l.Lock("1001")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestKeyLockMultiKeyNoDeadlock(t *testing.T) {
	l := newKeyLock()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Lock("a", "b")()
		}()
		go func() {
			defer wg.Done()
			l.Lock("b", "a", "b")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock")
	}
	if l.size() != 0 {
		t.Errorf("entries leaked: %d", l.size())
	}
}
