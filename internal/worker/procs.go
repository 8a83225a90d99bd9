package worker

import (
	"os/exec"
	"sync"
)

// ProcTable tracks the live child process per entry, so the cancel path can
// signal the tool the worker is currently waiting on. The worker registers the
// handle right after spawn and removes it as soon as the wait returns.
type ProcTable struct {
	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

func NewProcTable() *ProcTable {
	return &ProcTable{procs: make(map[string]*exec.Cmd)}
}

// Register records the live child for an entry, replacing any previous handle.
func (p *ProcTable) Register(entryID string, cmd *exec.Cmd) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.procs[entryID] = cmd
}

// Unregister drops the entry's handle.
func (p *ProcTable) Unregister(entryID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.procs, entryID)
}

// Kill best-effort terminates the entry's live child, if any.
func (p *ProcTable) Kill(entryID string) {
	p.mu.Lock()
	cmd := p.procs[entryID]
	p.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
