// Package fsx abstracts the blob storage used for cached documents.
package fsx

import (
	"context"
	"net/http"

	"github.com/Abraxas-365/finai/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("FS")

var (
	ErrFileNotFound = ErrRegistry.Register("FILE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "File not found")
	ErrInvalidPath  = ErrRegistry.Register("INVALID_PATH", errx.TypeValidation, http.StatusBadRequest, "Invalid file path")
)

// FileReader reads files addressed by slash separated relative paths
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FileWriter writes files, creating intermediate directories as needed
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

type FileSystem interface {
	FileReader
	FileWriter
}

// NotFound builds the error returned for a missing path
func NotFound(path string) error {
	return ErrRegistry.New(ErrFileNotFound).WithDetail("path", path)
}

// IsNotFound reports whether err means the path does not exist
func IsNotFound(err error) bool {
	return errx.CodeOf(err) == string(ErrFileNotFound)
}
