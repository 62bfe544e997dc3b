// Package process runs the diagnostic tool as a child process, either to
// completion with a hard timeout or detached for the duration of a scope.
//
// Detached processes run in their own process group. Stopping one sends
// SIGTERM to the group, polls for exit within the grace timeout and falls back
// to SIGKILL; a process that had to be killed, or that exited with a non-zero
// status on its own, is reported as an error carrying its captured output.
//
// Example usage:
//
//	sup, err := process.NewSupervisor(process.DefaultConfig("open3e", []string{"open3e", "-c", "vcan0"}))
//	if err != nil {
//	    return err
//	}
//	res, err := sup.Run(ctx, "-r", "0x680.256")
//
//	err = sup.Scope(ctx, []string{"-l", "open3e/cmnd"}, func(h *process.Handle) error {
//	    // interact with the running bridge
//	    return nil
//	})
package process
