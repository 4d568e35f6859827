package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrAPIKeyMissing indicates the provider's API key environment variable is not set.
	ErrAPIKeyMissing = errors.New("API key environment variable not set")

	// ErrModelMissing indicates the provider has no default model and none is configured.
	ErrModelMissing = errors.New("model not configured")

	// ErrFileNotFound indicates the specified input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrNoMarkdownFiles indicates a directory holds no .md file to process.
	ErrNoMarkdownFiles = errors.New("no markdown files found")

	// ErrOutputExists indicates the output file already exists.
	ErrOutputExists = errors.New("output file already exists")
)
