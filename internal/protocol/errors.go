package protocol

const (
	// Lifecycle operations.
	ErrNotFound = "E_NOT_FOUND"
	ErrExists   = "E_EXISTS"

	// Action submission boundary.
	ErrBadAction = "E_BAD_ACTION"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrNotFound:  {},
	ErrExists:    {},
	ErrBadAction: {},
	ErrInternal:  {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
