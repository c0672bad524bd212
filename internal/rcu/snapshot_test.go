package rcu

import (
	"sync"
	"testing"
)

func TestLoadReplace(t *testing.T) {
	type ruleSet struct{ version int }

	s := NewSnapshot(&ruleSet{version: 1})
	if s.Load().version != 1 {
		t.Fatalf("initial version = %d", s.Load().version)
	}

	s.Replace(&ruleSet{version: 2})
	if s.Load().version != 2 {
		t.Fatalf("replaced version = %d", s.Load().version)
	}
}

func TestConcurrentReaders(t *testing.T) {
	type ruleSet struct{ version int }

	s := NewSnapshot(&ruleSet{version: 0})
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(v int) {
			defer wg.Done()
			s.Replace(&ruleSet{version: v})
		}(i)
		go func() {
			defer wg.Done()
			if got := s.Load(); got == nil || got.version < 0 || got.version > 50 {
				t.Errorf("torn read: %#v", got)
			}
		}()
	}
	wg.Wait()
}
