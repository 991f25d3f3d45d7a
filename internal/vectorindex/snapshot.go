package vectorindex

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

const snapshotVersion = 1

// snapshot is the on-disk form. Row i of Vectors belongs to IDs[i].
type snapshot struct {
	Version int
	Model   string
	Dim     int
	IDs     []string
	Vectors []float32
}

func (s *snapshot) check(model string, dim int) error {
	switch {
	case s.Version != snapshotVersion:
		return fmt.Errorf("snapshot version %d, want %d", s.Version, snapshotVersion)
	case s.Model != model:
		return fmt.Errorf("snapshot model %q, want %q", s.Model, model)
	case s.Dim != dim:
		return fmt.Errorf("snapshot dimension %d, want %d", s.Dim, dim)
	case len(s.Vectors) != len(s.IDs)*s.Dim:
		return fmt.Errorf("snapshot holds %d ids but %d values", len(s.IDs), len(s.Vectors))
	}
	return nil
}

func readSnapshot(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var s snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &s, nil
}

// writeSnapshot writes to a temp file next to path, syncs it and renames it
// into place, so readers only ever see a complete snapshot.
func writeSnapshot(path string, s *snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if err := gob.NewEncoder(tmp).Encode(s); err != nil {
		cleanup()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
