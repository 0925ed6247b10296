package locks

import (
	"context"
	"sync"
)

type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	holders int
}

// NewKeyedMutex returns an in-process Locker.
func NewKeyedMutex() Locker {
	return &keyedMutex{
		slots: map[string]*slot{},
	}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.holders++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
	}, nil
}

// release forgets the slot once nobody holds or awaits it.
func (k *keyedMutex) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.holders--
	if s.holders == 0 {
		delete(k.slots, key)
	}
}
