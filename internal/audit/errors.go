package audit

import "errors"

var (
	ErrLoggerClosed   = errors.New("audit: logger is closed")
	ErrNoDestinations = errors.New("audit: no destinations configured")
)
