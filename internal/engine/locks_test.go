package engine

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	const workers = 8
	const iterations = 200

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				km.Lock("idt:aaaa0001")
				counter++
				km.Unlock("idt:aaaa0001")
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Errorf("expected %d increments, got %d", workers*iterations, counter)
	}
	if len(km.entries) != 0 {
		t.Errorf("expected entries to be freed, found %d", len(km.entries))
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	km.Lock("idt:aaaa0001")

	done := make(chan struct{})
	go func() {
		km.Lock("idt:bbbb0002")
		km.Unlock("idt:bbbb0002")
		close(done)
	}()

	// A different key must not block behind the held one.
	<-done
	km.Unlock("idt:aaaa0001")
}
