package memory

import (
	"context"
	"sync"
)

// InviteDirectory reserves invite codes within a single process.
type InviteDirectory struct {
	mu    sync.Mutex
	codes map[string]string
}

func NewInviteDirectory() *InviteDirectory {
	return &InviteDirectory{codes: make(map[string]string)}
}

// Reserve claims code for gameID. It reports false when another game holds it.
func (d *InviteDirectory) Reserve(_ context.Context, code, gameID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, ok := d.codes[code]; ok && owner != gameID {
		return false, nil
	}
	d.codes[code] = gameID
	return true, nil
}

func (d *InviteDirectory) Release(_ context.Context, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.codes, code)
	return nil
}
