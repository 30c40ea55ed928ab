package recorder

import "errors"

// Contract violations reported by Record. The profile is left untouched.
var (
	ErrInvalidItem   = errors.New("item id must not be empty")
	ErrInvalidAction = errors.New("action must be view, click or favorite")
)
