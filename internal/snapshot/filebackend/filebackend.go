// Package filebackend is a concrete opaque sectioned blob writer/reader:
// one JSON file per named section in a directory. It leans on
// encoding/json rather than a binary codec, since the engine never needs
// more than "name a section, hand it a payload".
package filebackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Backend implements snapshot.SectionWriter and snapshot.SectionReader.
type Backend struct{}

// New returns a ready-to-use file-based section backend.
func New() *Backend {
	return &Backend{}
}

func sectionPath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

// WriteSection marshals payload as JSON and writes it to
// <dir>/<name>.json, creating dir if necessary.
func (b *Backend) WriteSection(_ context.Context, dir, name string, payload any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filebackend: mkdir %s: %w", dir, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("filebackend: marshal section %s: %w", name, err)
	}

	path := sectionPath(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("filebackend: write %s: %w", path, err)
	}
	return nil
}

// ReadSection reads <dir>/<name>.json and unmarshals it into out.
func (b *Backend) ReadSection(_ context.Context, dir, name string, out any) error {
	path := sectionPath(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("filebackend: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("filebackend: unmarshal section %s: %w", name, err)
	}
	return nil
}
