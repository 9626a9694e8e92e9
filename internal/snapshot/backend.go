package snapshot

import "context"

// SectionWriter is the opaque sectioned-blob writer collaborator. The
// engine only names sections and supplies payloads; the storage format
// is delegated entirely to the implementation.
type SectionWriter interface {
	WriteSection(ctx context.Context, dir, name string, payload any) error
}

// SectionReader is the counterpart read-side collaborator. out must be a
// pointer the implementation can json.Unmarshal-shaped data into.
type SectionReader interface {
	ReadSection(ctx context.Context, dir, name string, out any) error
}
