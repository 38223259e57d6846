package session

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
)

func TestSecurityContext_InstallKeyOnce(t *testing.T) {
	c := New(dialect.SMB311, true)

	if c.HasKey() {
		t.Fatal("new context should have no key")
	}
	if c.ShouldSign() {
		t.Error("context without key must not sign")
	}
	if err := c.InstallKey(nil); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("InstallKey(nil) = %v, want ErrEmptyKey", err)
	}

	key := []byte{1, 2, 3, 4}
	if err := c.InstallKey(key); err != nil {
		t.Fatalf("InstallKey: %v", err)
	}
	key[0] = 0xFF
	if got := c.Key(); got[0] != 1 {
		t.Error("InstallKey must copy the caller's slice")
	}
	if err := c.InstallKey([]byte{9}); !errors.Is(err, ErrKeyAlreadyInstalled) {
		t.Errorf("second InstallKey = %v, want ErrKeyAlreadyInstalled", err)
	}
	if !c.ShouldSign() {
		t.Error("required + key should sign")
	}
}

func TestSecurityContext_NotRequired(t *testing.T) {
	c := New(dialect.SMB202, false)
	if err := c.InstallKey([]byte("key")); err != nil {
		t.Fatal(err)
	}
	if c.ShouldSign() {
		t.Error("signing not required should not sign")
	}
}

func TestSecurityContext_Destroy(t *testing.T) {
	c := New(dialect.SMB1, true)
	_ = c.InstallKey([]byte("secret"))
	c.Destroy()

	if c.HasKey() {
		t.Error("key should be wiped")
	}
	if err := c.InstallKey([]byte("again")); !errors.Is(err, ErrContextDestroyed) {
		t.Errorf("InstallKey after Destroy = %v", err)
	}
	var nilCtx *SecurityContext
	nilCtx.Destroy()
}

func TestSecurityContext_SequencedFailureDoesNotAdvance(t *testing.T) {
	c := New(dialect.SMB1, true)
	boom := errors.New("boom")
	if err := c.Sequenced(func([]byte, uint64) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Sequenced = %v", err)
	}
	if c.SequenceCounter() != 0 {
		t.Errorf("counter = %d, want 0", c.SequenceCounter())
	}
	_ = c.Sequenced(func([]byte, uint64) error { return nil })
	if c.SequenceCounter() != 1 {
		t.Errorf("counter = %d, want 1", c.SequenceCounter())
	}
}

func TestSecurityContext_SequencedConcurrent(t *testing.T) {
	c := New(dialect.SMB1, true)
	_ = c.InstallKey([]byte("k"))

	const workers, perWorker = 16, 200
	var (
		mu   sync.Mutex
		seen []uint64
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_ = c.Sequenced(func(_ []byte, seq uint64) error {
					mu.Lock()
					seen = append(seen, seq)
					mu.Unlock()
					return nil
				})
			}
		}()
	}
	wg.Wait()

	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	for i, v := range seen {
		if v != uint64(i) {
			t.Fatalf("seen[%d] = %d: repeat or gap", i, v)
		}
	}
	if c.SequenceCounter() != workers*perWorker {
		t.Errorf("counter = %d", c.SequenceCounter())
	}
}

func TestConnState(t *testing.T) {
	tests := []struct {
		from, to ConnState
		ok       bool
	}{
		{StateUnauthenticated, StateAwaitingSessionSetup, true},
		{StateUnauthenticated, StateEstablished, false},
		{StateAwaitingSessionSetup, StateEstablished, true},
		{StateAwaitingSessionSetup, StateUnauthenticated, false},
		{StateEstablished, StateAwaitingSessionSetup, true},
		{StateEstablished, StateUnauthenticated, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
	if StateAwaitingSessionSetup.String() != "awaiting_session_setup" {
		t.Error(StateAwaitingSessionSetup.String())
	}
}

func TestSecurityContext_PeekDoesNotAdvance(t *testing.T) {
	c := New(dialect.SMB1, true)
	_ = c.InstallKey([]byte("secret"))
	_ = c.Sequenced(func([]byte, uint64) error { return nil })

	var seen uint64
	if err := c.Peek(func(key []byte, next uint64) error {
		if string(key) != "secret" {
			t.Errorf("key = %q", key)
		}
		seen = next
		return nil
	}); err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if seen != 1 || c.SequenceCounter() != 1 {
		t.Errorf("seen %d, counter %d, want 1 and 1", seen, c.SequenceCounter())
	}

	c.Destroy()
	if err := c.Peek(func([]byte, uint64) error { return nil }); !errors.Is(err, ErrContextDestroyed) {
		t.Errorf("Peek after Destroy = %v", err)
	}
}
