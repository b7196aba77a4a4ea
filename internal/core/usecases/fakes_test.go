package usecases_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// --- In-memory KeyValueStore ---

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) failReads(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

func (s *memStore) failWrites(err error) {
	s.mu.Lock()
	s.setErr = err
	s.mu.Unlock()
}

// --- Fake Connectivity ---

type fakeConnectivity struct {
	mu     sync.Mutex
	online bool
	fns    map[int]func(bool)
	next   int
}

func newFakeConnectivity(online bool) *fakeConnectivity {
	return &fakeConnectivity{online: online, fns: make(map[int]func(bool))}
}

func (c *fakeConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConnectivity) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.fns[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.fns, id)
		c.mu.Unlock()
	}
}

func (c *fakeConnectivity) set(online bool) {
	c.mu.Lock()
	c.online = online
	fns := make([]func(bool), 0, len(c.fns))
	for _, fn := range c.fns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

func (c *fakeConnectivity) listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fns)
}

// --- Manual clock and retry timer ---

type manualClock struct {
	mu  sync.Mutex
	now time.Time

	scheduled []time.Duration
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// AfterFunc records the requested delay and never fires.
func (c *manualClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	c.scheduled = append(c.scheduled, d)
	c.mu.Unlock()
	return func() bool { return true }
}

func (c *manualClock) Scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.scheduled...)
}

var errBoom = errors.New("boom")
