package service

import (
	"sync"
	"testing"
)

func TestTemplateLocksSerializeSameID(t *testing.T) {
	locks := newTemplateLocks()

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(7)
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("Expected one holder at a time, saw %d", maxSeen)
	}
	if len(locks.locks) != 0 {
		t.Errorf("Expected released locks to be dropped, %d left", len(locks.locks))
	}
}

func TestTemplateLocksIndependentIDs(t *testing.T) {
	locks := newTemplateLocks()
	unlockA := locks.Lock(1)
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(2)
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}
