package dss

import "errors"

// Store error kinds. Backends map their native failures onto these.
var (
	ErrNoSuchMedium      = errors.New("no such medium")
	ErrMediumUnclaimed   = errors.New("medium not claimed by any server")
	ErrMediumAdminLocked = errors.New("medium administratively locked")
	ErrGetDisabled       = errors.New("gets disabled on medium")
	ErrAlreadyLocked     = errors.New("already locked")
	ErrLockNotFound      = errors.New("lock not found")
	ErrLockOwnedByOther  = errors.New("lock owned by another host")
)
