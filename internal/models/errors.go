package models

import "errors"

// Common validation errors for models.
var (
	// ErrChannelLoginRequired indicates a required channel login field is empty.
	ErrChannelLoginRequired = errors.New("channel_login is required")

	// ErrStartTimeRequired indicates a required start time field is empty.
	ErrStartTimeRequired = errors.New("start time is required")
)
