package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/Wyydra/yasignal/internal/core/domain"
)

func TestRegistry_RegisterLookupUnregister(t *testing.T) {
	r := NewRegistry()
	a := newEndpoint("alice")

	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := r.Lookup("alice")
	if err != nil || got != a {
		t.Fatalf("lookup = %v, %v", got, err)
	}
	if !r.Unregister(a) {
		t.Fatalf("unregister returned false")
	}
	if _, err := r.Lookup("alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("lookup after unregister: %v, want ErrNotFound", err)
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := NewRegistry()
	first := newEndpoint("alice")
	if err := r.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Register(newEndpoint("alice"))
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
	if got, _ := r.Lookup("alice"); got != first {
		t.Fatalf("duplicate replaced the original endpoint")
	}
}

func TestRegistry_StaleUnregisterKeepsNewEndpoint(t *testing.T) {
	r := NewRegistry()
	old := newEndpoint("alice")
	_ = r.Register(old)
	r.Unregister(old)

	fresh := newEndpoint("alice")
	_ = r.Register(fresh)

	if r.Unregister(old) {
		t.Fatalf("stale unregister removed the new endpoint")
	}
	if got, _ := r.Lookup("alice"); got != fresh {
		t.Fatalf("lookup = %v, want the new endpoint", got)
	}
}

func TestRegistry_ConcurrentRegisterSameID(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Register(newEndpoint("same")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d registrations succeeded, want 1", wins)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
}
