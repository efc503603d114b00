package services

import "errors"

// Validation failures reject the request before any mutation happens.
var (
	ErrDuplicateProduct     = errors.New("an app with this product id already exists")
	ErrIncompleteDescriptor = errors.New("package manifest is missing product id, version or title")
	ErrNoForwardTransition  = errors.New("status has no forward transition")
	ErrNotRejectable        = errors.New("only apps before deployment can be rejected")
	ErrNotResubmittable     = errors.New("only rejected apps can be resubmitted")
)
