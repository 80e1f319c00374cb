package filestore

import (
	"io"
)

// FileStore keeps uploaded files (profile images) content-addressed:
// the store derives the hash from the bytes, so identical uploads
// collapse to one stored file.
type FileStore interface {
	// Save stores the content and returns its hex content hash.
	// Saving the same bytes twice is a no-op returning the same hash.
	Save(r io.Reader) (string, error)

	// Get retrieves the file content for the given hash.
	Get(hash string) (io.ReadCloser, error)
}
