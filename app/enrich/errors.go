package enrich

import "errors"

var (
	ErrNotConfigured = errors.New("classifier is not configured")
	ErrNotFound      = errors.New("news item not found")
	ErrInvalidResult = errors.New("invalid classification result")
)
