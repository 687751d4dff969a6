package retry

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/spetersoncode/agbridge"
)

// IsTransient determines if an error is transient and should be retried.
// It first checks if the error implements agbridge.CategorizedError for
// explicit categorization. If not, it falls back to heuristic detection:
// - Network timeouts
// - Connection resets and refusals
// - sqlite busy or locked databases
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce agbridge.CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == agbridge.ErrorTransient
	}

	return isTransientNetworkError(err) || isTransientMessage(err)
}

func isTransientNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT:
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"i/o timeout",
	"database is locked",
	"sqlite_busy",
	"loading the dataset in memory",
	"tryagain",
}

func isTransientMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
