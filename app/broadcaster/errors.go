package broadcaster

import "errors"

var (
	ErrNilLogger  = errors.New("logger cannot be nil")
	ErrNilService = errors.New("service cannot be nil")
)
