package core

import (
	"strings"
	"sync"
)

// Keyring rotates through a pool of API credentials round-robin. It has
// its own lock, independent from the quota cache's; the two concurrency
// domains never meet.
type Keyring struct {
	mu   sync.Mutex
	keys []string
	next int
}

func NewKeyring(keys []string) *Keyring {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return &Keyring{keys: cleaned}
}

// ParseKeyring splits a comma-separated credential list, dropping
// blanks.
func ParseKeyring(csv string) *Keyring {
	return NewKeyring(strings.Split(csv, ","))
}

// Next returns the next key and its index in rotation order.
func (k *Keyring) Next() (string, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return "", -1
	}
	key := k.keys[k.next]
	idx := k.next
	k.next = (k.next + 1) % len(k.keys)
	return key, idx
}

func (k *Keyring) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}
