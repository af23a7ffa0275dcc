package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/overrides"
)

const snapshotExt = ".json.zst"

// FileStore is a Backend on the local file system. Snapshots are stored as
// zstd-compressed JSON, one file per player.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"players", "overrides", "completions"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) LoadSnapshot(_ context.Context, player string) (*Snapshot, error) {
	if err := checkID(player); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw, err := fs.readSnapshot(player)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		log.WithError(err).WithField("player", player).Warn("Unreadable snapshot file treated as absent")
		return nil, nil
	}
	return Decode(raw), nil
}

func (fs *FileStore) SaveSnapshot(_ context.Context, player string, snap Snapshot) error {
	if err := checkID(player); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stored, _ := fs.readSnapshot(player)
	data, _, err := mergeEncoded(stored, snap)
	if err != nil {
		return err
	}
	return fs.writeSnapshot(player, data)
}

func (fs *FileStore) DeleteSnapshot(_ context.Context, player string) error {
	if err := checkID(player); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.Remove(fs.snapshotPath(player)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}
	return nil
}

func (fs *FileStore) readSnapshot(player string) ([]byte, error) {
	f, err := os.Open(fs.snapshotPath(player))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func (fs *FileStore) writeSnapshot(player string, data []byte) error {
	return writeFileAtomic(fs.snapshotPath(player), func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		if _, err := enc.Write(data); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	})
}

func (fs *FileStore) LoadOverrides(_ context.Context, world string) (map[overrides.TileKey]bool, error) {
	if err := checkID(world); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var entries []OverrideEntry
	if err := readJSON(fs.overridesPath(world), &entries); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[overrides.TileKey]bool{}, nil
		}
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	return MapFromEntries(entries), nil
}

func (fs *FileStore) SaveOverrides(_ context.Context, world string, entries map[overrides.TileKey]bool) error {
	if err := checkID(world); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return writeJSON(fs.overridesPath(world), EntriesFromMap(entries))
}

func (fs *FileStore) RecordQuestCompletion(_ context.Context, player string, rec Completion) error {
	if err := checkID(player); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var existing []Completion
	path := fs.completionsPath(player)
	if err := readJSON(path, &existing); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read completions: %w", err)
	}
	for _, c := range existing {
		if c.QuestID == rec.QuestID {
			return nil
		}
	}
	return writeJSON(path, append(existing, rec))
}

func (fs *FileStore) Completions(_ context.Context, player string) ([]Completion, error) {
	if err := checkID(player); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []Completion
	if err := readJSON(fs.completionsPath(player), &out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read completions: %w", err)
	}
	return out, nil
}

// Players lists the players that have a snapshot file.
func (fs *FileStore) Players(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, "players"))
	if err != nil {
		return nil, fmt.Errorf("failed to read players directory: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, snapshotExt) {
			ids = append(ids, strings.TrimSuffix(name, snapshotExt))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether a player has a snapshot file.
func (fs *FileStore) Exists(player string) bool {
	_, err := os.Stat(fs.snapshotPath(player))
	return err == nil
}

func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) snapshotPath(player string) string {
	return filepath.Join(fs.dir, "players", player+snapshotExt)
}

func (fs *FileStore) overridesPath(world string) string {
	return filepath.Join(fs.dir, "overrides", world+".json")
}

func (fs *FileStore) completionsPath(player string) string {
	return filepath.Join(fs.dir, "completions", player+".json")
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// writeFileAtomic writes through a temporary file and renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
