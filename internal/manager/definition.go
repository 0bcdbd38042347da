package manager

import (
	"fmt"
	"sync"

	"github.com/danmuck/linfa/internal/lifecycle"
	"github.com/danmuck/linfa/internal/protocol"
)

// DefinitionStore holds the task definition text run by the executor.
type DefinitionStore struct {
	mu   sync.RWMutex
	text string
}

func NewDefinitionStore(text string) *DefinitionStore {
	return &DefinitionStore{text: text}
}

func (d *DefinitionStore) Load() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Replace swaps the definition only while machine reports IDLE. The status
// is lock-free and a START may land between the check and the write. The
// write lock is held across both, and readers take the read lock, so a loader
// that observed STARTING sees the new text and Replace orders before the START.
func (d *DefinitionStore) Replace(machine *lifecycle.Machine, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := machine.Load(); s != protocol.StatusIdle {
		return fmt.Errorf("%w: status=%s", protocol.ErrIllegalDefinitionReplace, s)
	}
	d.text = text
	return nil
}
