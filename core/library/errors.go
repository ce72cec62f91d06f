package library

import (
	"errors"

	"Tunevault/repository"
)

var (
	ErrNotFound        = errors.New("music file not found")
	ErrForbidden       = errors.New("music file belongs to another user")
	ErrEmptyFile       = errors.New("uploaded file is empty")
	ErrFileTooLarge    = errors.New("uploaded file is too large")
	ErrUnsupportedType = errors.New("unsupported audio type")
	ErrBusy            = errors.New("too many concurrent uploads, please try again later")
	ErrInvalidField    = repository.ErrInvalidField
)
