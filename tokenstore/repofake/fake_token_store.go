package faketokenstore

import (
	"sync"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/tokenstore"
)

var _ tokenstore.Store = (*FakeTokenStore)(nil)

type FakeTokenStore struct {
	slots map[tokenstore.Slot]string
	lock  sync.RWMutex
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{
		slots: make(map[tokenstore.Slot]string),
	}
}

func (ts *FakeTokenStore) Get(slot tokenstore.Slot) (string, error) {
	ts.lock.RLock()
	defer ts.lock.RUnlock()

	value, ok := ts.slots[slot]
	if !ok {
		return "", errors.ErrNotFound
	}
	return value, nil
}

func (ts *FakeTokenStore) Set(slot tokenstore.Slot, value string) error {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	if value == "" {
		delete(ts.slots, slot)
		return nil
	}
	ts.slots[slot] = value
	return nil
}

func (ts *FakeTokenStore) Delete(slot tokenstore.Slot) error {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	delete(ts.slots, slot)
	return nil
}

// Len returns the number of filled slots
func (ts *FakeTokenStore) Len() int {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return len(ts.slots)
}
