package errors

import "fmt"

var (
	ErrValidation       = fmt.Errorf("validation failed")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrNotFound         = fmt.Errorf("not found")
	ErrTransportAuth    = fmt.Errorf("authentication failed")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)
