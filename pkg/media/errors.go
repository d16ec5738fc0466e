package media

import (
	"errors"
	"fmt"
	"io/fs"
)

const (
	ErrorInvalidPath  = "invalid_path"
	ErrorOutsideRoot  = "outside_root"
	ErrorPathNotFound = "path_not_found"
	ErrorDownload     = "download_failed"
	ErrorTooLarge     = "payload_too_large"
	ErrorIO           = "io_error"
)

// Error represents a stable, categorized media failure. The category is
// what ends up on forwarded records and log lines; Detail is free text.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError creates a categorized media error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// CategoryFromError returns the stable category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	if errors.Is(err, fs.ErrNotExist) {
		return ErrorPathNotFound
	}

	return ErrorIO
}
