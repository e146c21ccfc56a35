// Package storage keeps finished runs on disk, one directory per run with
// a metadata.json and an observables.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/dtwa/internal/observables"
)

var ErrCorrupt = errors.New("storage: corrupt observables file")

type Store struct {
	baseDir string
	create  func(name string) (io.WriteCloser, error)
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, create: createFile}
}

func createFile(name string) (io.WriteCloser, error) { return os.Create(name) }

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Preset        string             `json:"preset,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	Trajectories  int                `json:"trajectories"`
	Ranks         int                `json:"ranks"`
	SeedOffset    int64              `json:"seed_offset"`
	Sampling      string             `json:"sampling"`
	Time          string             `json:"time"`
	Integrator    string             `json:"integrator"`
	Normalization string             `json:"normalization"`
	Sites         int                `json:"sites"`
	Alpha         float64            `json:"alpha"`
	J             [3]float64         `json:"j"`
	H             [3]float64         `json:"h"`
	Kac           bool               `json:"kac"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// Save writes a run and returns its ID. ID and Timestamp of meta are
// filled in when empty. A run that could not be written completely is
// removed again.
func (s *Store) Save(meta RunMetadata, data *observables.Dataset) (id string, err error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(runDir)
		}
	}()

	err = s.writeFile(filepath.Join(runDir, "metadata.json"), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
	if err != nil {
		return "", err
	}

	err = s.writeFile(filepath.Join(runDir, "observables.csv"), func(f io.Writer) error {
		w := csv.NewWriter(f)
		if err := w.Write(data.Columns()); err != nil {
			return err
		}
		series := data.Series()
		row := make([]string, len(series))
		for k := 0; k < data.Len(); k++ {
			for c, col := range series {
				row[c] = strconv.FormatFloat(col[k], 'g', -1, 64)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
	if err != nil {
		return "", err
	}
	return meta.ID, nil
}

// writeFile creates name and reports the first error of write or of
// closing the file.
func (s *Store) writeFile(name string, write func(io.Writer) error) (err error) {
	create := s.create
	if create == nil {
		create = createFile
	}
	f, err := create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("storage: close %s: %w", filepath.Base(name), cerr)
		}
	}()
	return write(f)
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadDataset reads back the observables of a run.
func (s *Store) LoadDataset(runID string) (*observables.Dataset, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "observables.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header", ErrCorrupt)
	}

	header, rows := records[0], records[1:]
	d := observables.NewDataset(make([]float64, len(rows)))
	for _, name := range header {
		if name == "drift" {
			d.Drift = make([]float64, len(rows))
		}
	}

	for c, name := range header {
		col, ok := d.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrCorrupt, name)
		}
		for k, rec := range rows {
			v, err := strconv.ParseFloat(rec[c], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", ErrCorrupt, k+1, name, err)
			}
			col[k] = v
		}
	}
	return d, nil
}
