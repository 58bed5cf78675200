package parallel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBackend is matched by every UnknownBackendError.
var ErrUnknownBackend = errors.New("unknown backend")

// UnknownBackendError is returned when a backend name resolves to nothing,
// neither a registered type nor a lazy external factory that registers it.
type UnknownBackendError struct {
	Name  string
	Known []string
}

func (e *UnknownBackendError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("invalid backend %q: no backends registered", e.Name)
	}
	return fmt.Sprintf("invalid backend %q, expected one of: %s", e.Name, strings.Join(e.Known, ", "))
}

// Is reports whether target is ErrUnknownBackend.
func (e *UnknownBackendError) Is(target error) bool {
	return target == ErrUnknownBackend
}
