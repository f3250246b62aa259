package collab

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/vertexbuf"
)

// DirChangeStore reads changes from a directory of change files named
// by their hash, for the debug CLI's `output` command.
type DirChangeStore struct {
	dir     string
	changes map[graph.Hash]*change.Change
}

// LoadDirChangeStore reads every change file in dir, keyed by the hash
// computed from its own contents rather than its filename — so a
// renamed or mislabeled file is still found correctly.
func LoadDirChangeStore(dir string) (*DirChangeStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("collab: read change dir %s: %w", dir, err)
	}
	s := &DirChangeStore{dir: dir, changes: map[graph.Hash]*change.Change{}}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		c, err := change.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		s.changes[c.Hash()] = c
	}
	return s, nil
}

func (s *DirChangeStore) GetChange(_ context.Context, hash graph.Hash) (*change.Change, error) {
	c, ok := s.changes[hash]
	if !ok {
		return nil, fmt.Errorf("collab: change %s not found in %s", change.ShortHash(hash), s.dir)
	}
	return c, nil
}

func (s *DirChangeStore) GetHeader(ctx context.Context, hash graph.Hash) (*change.Header, error) {
	c, err := s.GetChange(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &c.Header, nil
}

func (s *DirChangeStore) GetChanges(_ context.Context) ([]graph.Hash, error) {
	out := make([]graph.Hash, 0, len(s.changes))
	for h := range s.changes {
		out = append(out, h)
	}
	return out, nil
}

func (s *DirChangeStore) SaveChange(_ context.Context, c *change.Change) (graph.Hash, error) {
	hash := c.Hash()
	path := filepath.Join(s.dir, change.ShortHash(hash)+".json")
	if err := change.WriteFile(path, c); err != nil {
		return graph.Hash{}, err
	}
	s.changes[hash] = c
	return hash, nil
}

func (s *DirChangeStore) Knows(_ context.Context, hash graph.Hash) (bool, error) {
	_, ok := s.changes[hash]
	return ok, nil
}

func (s *DirChangeStore) GetContent(hash graph.Hash, start, end uint64) ([]byte, error) {
	c, ok := s.changes[hash]
	if !ok {
		return nil, fmt.Errorf("collab: change %s not found in %s", change.ShortHash(hash), s.dir)
	}
	if end > uint64(len(c.Contents)) || start > end {
		return nil, fmt.Errorf("collab: range [%d,%d) out of bounds for change %s", start, end, change.ShortHash(hash))
	}
	return c.Contents[start:end], nil
}

// DirWorkingCopy materializes a channel's tree onto a real directory.
type DirWorkingCopy struct {
	root string
}

// NewDirWorkingCopy returns a working copy rooted at root.
func NewDirWorkingCopy(root string) *DirWorkingCopy {
	return &DirWorkingCopy{root: root}
}

func (w *DirWorkingCopy) resolve(path string) string {
	return filepath.Join(w.root, filepath.FromSlash(path))
}

func (w *DirWorkingCopy) FileMetadata(path string) (FileMetadata, error) {
	fi, err := os.Stat(w.resolve(path))
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{Size: fi.Size(), Mode: fi.Mode(), ModTime: fi.ModTime(), IsDir: fi.IsDir()}, nil
}

func (w *DirWorkingCopy) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(w.resolve(path))
}

func (w *DirWorkingCopy) WriteFile(path string, content []byte, conflicts []vertexbuf.Conflict) error {
	buf := content
	if len(conflicts) > 0 {
		var b bytes.Buffer
		cw := vertexbuf.NewWriter(&b)
		cw.WriteContent(content)
		for _, c := range conflicts {
			cw.WriteConflict(c.Kind, []vertexbuf.Conflict{c})
		}
		if err := cw.Flush(); err != nil {
			return err
		}
		buf = b.Bytes()
	}
	return os.WriteFile(w.resolve(path), buf, 0o644)
}

func (w *DirWorkingCopy) Rename(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(w.resolve(newPath)), 0o755); err != nil {
		return err
	}
	return os.Rename(w.resolve(oldPath), w.resolve(newPath))
}

func (w *DirWorkingCopy) Remove(path string) error {
	err := os.Remove(w.resolve(path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (w *DirWorkingCopy) SetPermissions(path string, mode os.FileMode) error {
	return os.Chmod(w.resolve(path), mode)
}

func (w *DirWorkingCopy) CreateDirAll(path string) error {
	return os.MkdirAll(w.resolve(path), 0o755)
}

func (w *DirWorkingCopy) ModifiedTime(path string) (time.Time, error) {
	fi, err := os.Stat(w.resolve(path))
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (w *DirWorkingCopy) IsWritable(path string) (bool, error) {
	f, err := os.OpenFile(w.resolve(path), os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		if os.IsPermission(err) {
			return false, nil
		}
		return false, err
	}
	f.Close()
	return true, nil
}
