package driven

import "context"

// BlobStore is remote object storage holding companion copies of
// uploaded documents. The service only ever removes from it.
type BlobStore interface {
	// List returns the object paths under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Remove deletes the given object paths.
	Remove(ctx context.Context, paths []string) error
}
