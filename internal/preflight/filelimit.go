package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the recommended descriptor limit; every client
// connection to the server holds one.
const MinFileDescriptors = 1024

// CheckFileDescriptors warns when the descriptor limit is low.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (recommended: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 4096' before starting the server"
		return result
	}
	result.Status = StatusPass
	return result
}
