// Package snapshot persists knowledge collections so a server can reload them without re-extracting.
package snapshot

import (
	"context"
	"errors"
	"os"

	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
)

// ErrNotFound is returned when no snapshot has been saved yet.
var ErrNotFound = errors.New("knowledge snapshot not found")

// Store saves and restores a whole knowledge collection.
type Store interface {
	Save(ctx context.Context, items []knowledge.Item) error
	Load(ctx context.Context) ([]knowledge.Item, error)
}

// FileStore keeps the snapshot in a YAML (or .json) file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (f *FileStore) Save(ctx context.Context, items []knowledge.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return knowledge.WriteFile(f.Path, items)
}

func (f *FileStore) Load(ctx context.Context) ([]knowledge.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(f.Path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return knowledge.ReadFile(f.Path)
}
