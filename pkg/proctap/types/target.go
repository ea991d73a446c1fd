package types

import (
	"fmt"
)

// ProcessID is an OS process identifier.
type ProcessID int32

// Target selects the process to capture from, either by its PID or by
// the executable name (which is resolved to a PID at open time).
type Target struct {
	PID  ProcessID
	Name string
}

func TargetPID(pid ProcessID) Target {
	return Target{PID: pid}
}

func TargetName(name string) Target {
	return Target{Name: name}
}

func (t Target) Validate() error {
	if t.PID == 0 && t.Name == "" {
		return fmt.Errorf("%w: neither PID nor process name is set", ErrProcessNotFound)
	}
	return nil
}

func (t Target) String() string {
	switch {
	case t.PID != 0 && t.Name != "":
		return fmt.Sprintf("%s[%d]", t.Name, t.PID)
	case t.PID != 0:
		return fmt.Sprintf("pid:%d", t.PID)
	case t.Name != "":
		return fmt.Sprintf("name:%s", t.Name)
	}
	return "<empty>"
}
