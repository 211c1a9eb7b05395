package process

import (
	"os"

	"github.com/pkg/errors"
	ps "github.com/shirou/gopsutil/v4/process"
)

// killTree kills the process identified by pid and all of its descendants.
func killTree(pid int) error {
	root, err := ps.NewProcess(int32(pid))
	if err != nil {
		return os.ErrProcessDone
	}

	// Descendants are collected before the root dies, as they would be
	// reparented afterwards.
	descendants := collectDescendants(root)

	if err := root.Kill(); err != nil {
		if running, _ := root.IsRunning(); running {
			return errors.Wrapf(err, "could not kill process %d", pid)
		}
	}

	for _, p := range descendants {
		_ = p.Kill()
	}

	return nil
}

func collectDescendants(p *ps.Process) []*ps.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}

	descendants := make([]*ps.Process, 0, len(children))
	for _, child := range children {
		descendants = append(descendants, child)
		descendants = append(descendants, collectDescendants(child)...)
	}

	return descendants
}
