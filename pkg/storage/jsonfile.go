package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fastctx/fastctx/pkg/models"
)

const nextIDFile = "_next_id.json"

// JSONFileStore implements Store with one JSON file per run
type JSONFileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewJSONFileStore creates a file-based run ledger under baseDir/runs
func NewJSONFileStore(baseDir string) (*JSONFileStore, error) {
	dir := filepath.Join(baseDir, "runs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	return &JSONFileStore{dir: dir}, nil
}

// Info returns store information
func (s *JSONFileStore) Info() StoreInfo {
	return StoreInfo{Type: "jsonfile", Version: "1.0.0"}
}

// Dir returns the directory holding the run files.
func (s *JSONFileStore) Dir() string {
	return s.dir
}

func (s *JSONFileStore) runFile(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", id))
}

// nextID reads and bumps the ID counter. Callers hold s.mu.
func (s *JSONFileStore) nextID() (int, error) {
	path := filepath.Join(s.dir, nextIDFile)

	var idData struct {
		NextID int `json:"next_id"`
	}
	idData.NextID = 1
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &idData); err != nil {
			return 0, fmt.Errorf("corrupt id file: %w", err)
		}
	}

	id := idData.NextID
	idData.NextID++

	data, err := json.Marshal(idData)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, err
	}
	return id, nil
}

// bumpNextID keeps the counter ahead of explicitly saved IDs. Callers hold s.mu.
func (s *JSONFileStore) bumpNextID(id int) error {
	path := filepath.Join(s.dir, nextIDFile)

	var idData struct {
		NextID int `json:"next_id"`
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &idData)
	}
	if idData.NextID > id {
		return nil
	}
	idData.NextID = id + 1
	data, err := json.Marshal(idData)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *JSONFileStore) write(run *models.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.runFile(run.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.runFile(run.ID))
}

func (s *JSONFileStore) exists(id int) bool {
	_, err := os.Stat(s.runFile(id))
	return err == nil
}

// Create stores a run under the next ID
func (s *JSONFileStore) Create(ctx context.Context, run *models.Run) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID()
	if err != nil {
		return 0, err
	}

	run.ID = id
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if err := s.write(run); err != nil {
		return 0, err
	}
	return id, nil
}

// Get retrieves a run by ID
func (s *JSONFileStore) Get(ctx context.Context, id int) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.runFile(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, err
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Update replaces a stored run
func (s *JSONFileStore) Update(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists(run.ID) {
		return fmt.Errorf("%w: id %d", ErrNotFound, run.ID)
	}
	return s.write(run)
}

// Save stores a run under its own ID
func (s *JSONFileStore) Save(ctx context.Context, run *models.Run) error {
	if run.ID <= 0 {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exists(run.ID) {
		return fmt.Errorf("%w: id %d", ErrAlreadyExists, run.ID)
	}
	if err := s.write(run); err != nil {
		return err
	}
	return s.bumpNextID(run.ID)
}

// Delete removes a run
func (s *JSONFileStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists(id) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return os.Remove(s.runFile(id))
}

// List returns runs matching the filter, newest first
func (s *JSONFileStore) List(ctx context.Context, filter models.RunFilter) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	runs := []*models.Run{}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" || file.Name() == nextIDFile {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, file.Name()))
		if err != nil {
			continue
		}

		var run models.Run
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		if filter.Match(&run) {
			runs = append(runs, &run)
		}
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	return applyLimit(runs, filter.Limit), nil
}

// Close is a no-op for the file store
func (s *JSONFileStore) Close() error {
	return nil
}
