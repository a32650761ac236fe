package docs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

// FileStore keeps document content as version files on a shared volume,
// one directory per document. The newest version is the content.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

var _ ports.DocumentStore = (*FileStore)(nil)

func (s *FileStore) GetContent(_ context.Context, documentID string) ([]byte, error) {
	dir := filepath.Join(s.root, documentID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	// Version file names sort by creation order.
	sort.Strings(names)
	return os.ReadFile(filepath.Join(dir, names[len(names)-1]))
}

func (s *FileStore) PersistVersion(_ context.Context, documentID string, content []byte, _ map[string]string) (string, error) {
	dir := filepath.Join(s.root, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	versionID := uuid.NewString()
	name := fmt.Sprintf("%06d_%s", len(entries)+1, versionID)
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return "", err
	}
	return versionID, nil
}
