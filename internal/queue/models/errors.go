package models

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid arguments")

	ErrInvalidURL      = errors.New("invalid url")
	ErrMetadataFetch   = errors.New("metadata fetch failed")
	ErrEmptyMetadata   = errors.New("metadata response has no data")
	ErrDownloadFailure = errors.New("download failed")
)
