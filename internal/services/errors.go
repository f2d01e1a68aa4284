package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrRead          = errors.New("read error")
	ErrConversion    = errors.New("conversion error")
	ErrDispatch      = errors.New("dispatch error")
	ErrExternalTool  = errors.New("external tool error")
	ErrTimeout       = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err should stop the poll loop. Configuration errors
// are always fatal. Read and conversion errors are fatal only in strict mode;
// otherwise the next cycle retries them.
func IsFatal(err error, strict bool) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfiguration):
		return true
	case errors.Is(err, ErrRead), errors.Is(err, ErrConversion):
		return strict
	default:
		return false
	}
}

// Kind returns a short classification label used in structured logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrRead):
		return "read"
	case errors.Is(err, ErrConversion):
		return "conversion"
	case errors.Is(err, ErrDispatch):
		return "dispatch"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
