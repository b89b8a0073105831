package vpn

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/events"
)

// Reaper sweeps orphaned VPN client processes system-wide. Orphans can
// survive a supervisor crash, so the sweep matches by executable name
// rather than relying on any tracked handle.
type Reaper struct {
	executable string
	bus        *events.Bus
}

// NewReaper creates a reaper for the configured client executable.
func NewReaper(bus *events.Bus) *Reaper {
	return &Reaper{executable: common.ClientExecutable, bus: bus}
}

// Sweep terminates every matching process except the excluded PIDs and
// returns the number of processes it terminated. A process that is
// already gone counts as success without incrementing the count.
// Permission errors are logged and skipped; they never abort the sweep.
func (r *Reaper) Sweep(exclude ...int32) int {
	procs, err := process.Processes()
	if err != nil {
		common.LogWarn("Process enumeration failed: %v", err)
		return 0
	}

	excluded := make(map[int32]bool, len(exclude))
	for _, pid := range exclude {
		excluded[pid] = true
	}
	self := int32(os.Getpid())

	killed := 0
	for _, proc := range procs {
		if excluded[proc.Pid] || proc.Pid == self {
			continue
		}
		name, err := proc.Name()
		if err != nil || !matchesExecutable(name, r.executable) {
			continue
		}

		if r.terminate(proc) {
			killed++
		}
	}

	if killed > 0 {
		common.LogInfo("Reaped %d orphaned %s process(es)", killed, r.executable)
	}
	if r.bus != nil {
		r.bus.Publish(events.ReaperSweepEvent{Killed: killed, Timestamp: time.Now()})
	}
	return killed
}

// terminate escalates SIGTERM to SIGKILL for one process. Returns true
// when the process was terminated by this call.
func (r *Reaper) terminate(proc *process.Process) bool {
	pid := proc.Pid

	if err := proc.Terminate(); err != nil {
		if isPermissionError(err) {
			common.LogWarn("Cannot signal %s process %d: permission denied", r.executable, pid)
			return false
		}
		// Already gone between enumeration and signal.
		return false
	}

	deadline := time.Now().Add(common.TerminateGraceTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(common.TerminatePollInterval)
		alive, err := process.PidExists(pid)
		if err != nil || !alive {
			return true
		}
	}

	common.LogWarn("Process %d ignored SIGTERM, escalating to SIGKILL", pid)
	if err := proc.Kill(); err != nil {
		if isPermissionError(err) {
			common.LogWarn("Cannot kill %s process %d: permission denied", r.executable, pid)
			return false
		}
		return true
	}
	time.Sleep(common.TerminateKillTimeout)
	return true
}

// matchesExecutable compares process names allowing for the kernel's
// 15-character comm truncation.
func matchesExecutable(name, executable string) bool {
	if name == executable {
		return true
	}
	return len(name) == 15 && strings.HasPrefix(executable, name)
}

func isPermissionError(err error) bool {
	return errors.Is(err, os.ErrPermission) ||
		strings.Contains(strings.ToLower(err.Error()), "permission denied") ||
		strings.Contains(strings.ToLower(err.Error()), "operation not permitted")
}
