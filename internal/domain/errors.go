package domain

import (
	"errors"
	"fmt"
)

// Error kinds reported to callers. Specific errors wrap one of these so
// transports can map them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
)

var (
	ErrChannelNotFound  = fmt.Errorf("channel %w", ErrNotFound)
	ErrMessageNotFound  = fmt.Errorf("message %w or not authorized", ErrNotFound)
	ErrEmptyContent     = fmt.Errorf("%w: message content is required", ErrInvalidArgument)
	ErrContentTooLong   = fmt.Errorf("%w: message content is too long", ErrInvalidArgument)
	ErrEmptyChannelName = fmt.Errorf("%w: channel name is required", ErrInvalidArgument)
	ErrChannelNameTaken = fmt.Errorf("%w: channel with this name already exists", ErrInvalidArgument)
	ErrInvalidPage      = fmt.Errorf("%w: invalid pagination parameters", ErrInvalidArgument)
	ErrMissingActor     = fmt.Errorf("%w: no authenticated actor", ErrUnauthorized)
)
