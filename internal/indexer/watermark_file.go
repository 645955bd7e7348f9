package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"poolindexer/internal/store"
)

// Watermark is one persisted watermark entry.
type Watermark struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileWatermarkStore persists named watermarks to a JSON file.
type FileWatermarkStore struct {
	path string
	mu   sync.Mutex
}

var _ store.WatermarkStore = (*FileWatermarkStore)(nil)

func NewFileWatermarkStore(path string) *FileWatermarkStore {
	return &FileWatermarkStore{path: path}
}

func (f *FileWatermarkStore) LoadWatermark(_ context.Context, name string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return 0, false, err
	}
	wm, ok := all[name]
	if !ok {
		return 0, false, nil
	}
	return wm.LastProcessedBlock, true, nil
}

// SaveWatermark records block for name. A lower value than the stored one is
// ignored.
func (f *FileWatermarkStore) SaveWatermark(_ context.Context, name string, block uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	if cur, ok := all[name]; ok && cur.LastProcessedBlock > block {
		return nil
	}
	all[name] = Watermark{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watermark dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watermark: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write watermark tmp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename watermark: %w", err)
	}
	return nil
}

func (f *FileWatermarkStore) read() (map[string]Watermark, error) {
	all := make(map[string]Watermark)

	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, fmt.Errorf("stat watermark: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("watermark path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse watermark: %w", err)
	}
	return all, nil
}
