// Package memory is an in-process provider. It is the default store when no
// shared backend is configured, and it is what the tests run against.
// Entries are not visible to other processes.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/recordcache/provider"
)

type entry struct {
	value   []byte
	expires time.Time // zero => no TTL
}

// Store keeps entries in a map guarded by a RWMutex.
// An optional cleanup loop prunes expired entries; expired entries are
// never returned even without it.
type Store struct {
	mu     sync.RWMutex
	m      map[string]entry
	now    func() time.Time
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var (
	_ pr.Provider    = (*Store)(nil)
	_ pr.MultiGetter = (*Store)(nil)
	_ pr.Incrementer = (*Store)(nil)
)

// New creates a Store. cleanupInterval <= 0 disables the background sweep.
func New(cleanupInterval time.Duration) *Store {
	s := &Store{m: make(map[string]entry), now: time.Now}
	if cleanupInterval > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Store) live(e entry, now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok || !s.live(e, s.now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// GetMulti acquires the read lock once and reads all requested keys.
func (s *Store) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	now := s.now()
	out := make(map[string][]byte, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		if e, ok := s.m[k]; ok && s.live(e, now) {
			out[k] = e.value
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = entry{value: value, expires: exp}
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	e, ok := s.m[key]
	if ok && s.live(e, now) {
		v, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("memory incr %s: value is not an integer", key)
		}
		n = v
	} else {
		e = entry{}
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	s.m[key] = e
	return n, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included until the
// next Cleanup.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Keys returns a snapshot of stored keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}

// Cleanup removes expired entries.
func (s *Store) Cleanup() {
	now := s.now()
	s.mu.Lock()
	for k, e := range s.m {
		if !s.live(e, now) {
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
}

func (s *Store) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}
