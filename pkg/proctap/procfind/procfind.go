// Package procfind resolves capture targets to live process IDs.
package procfind

import (
	"context"
	"fmt"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// FindPID resolves an executable name to the PID of a running process.
// The match is case-insensitive and tolerates a missing or an extra
// ".exe" suffix, so "firefox" finds "firefox.exe" and vice versa.
func FindPID(
	ctx context.Context,
	name string,
) (types.ProcessID, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to list the processes: %w", err)
	}

	want := normalizeName(name)
	for _, proc := range procs {
		procName, err := proc.NameWithContext(ctx)
		if err != nil {
			// the process could have died while we were iterating
			continue
		}
		if normalizeName(procName) == want {
			logger.Debugf(ctx, "resolved process name '%s' to PID %d", name, proc.Pid)
			return types.ProcessID(proc.Pid), nil
		}
	}
	return 0, fmt.Errorf("%w: no running process is named '%s'", types.ErrProcessNotFound, name)
}

func normalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

// Exists reports whether a process with the given PID is running.
func Exists(
	ctx context.Context,
	pid types.ProcessID,
) (bool, error) {
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return false, fmt.Errorf("unable to check whether PID %d exists: %w", pid, err)
	}
	return exists, nil
}

// Resolve turns a Target into a concrete PID of a running process.
func Resolve(
	ctx context.Context,
	target types.Target,
) (types.ProcessID, error) {
	if err := target.Validate(); err != nil {
		return 0, err
	}
	if target.PID != 0 {
		exists, err := Exists(ctx, target.PID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, fmt.Errorf("%w: no process with PID %d", types.ErrProcessNotFound, target.PID)
		}
		return target.PID, nil
	}
	return FindPID(ctx, target.Name)
}
