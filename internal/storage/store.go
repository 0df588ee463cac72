// Package storage persists run results on disk: one directory per run
// holding metadata.json and states.csv.
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
	"github.com/san-kum/nssim/internal/experiment"
	"github.com/san-kum/nssim/internal/timestepping"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Integrator string             `json:"integrator"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	NewtonMode string             `json:"newton_mode"`
	Params     map[string]float64 `json:"params,omitempty"`
	Columns    []string           `json:"columns"`
	Stats      timestepping.Stats `json:"stats"`
	Metrics    map[string]float64 `json:"metrics"`
	WallTime   string             `json:"wall_time"`
	// Error is set when the run aborted; the stored states stop at the last
	// accepted step.
	Error string `json:"error,omitempty"`
}

// Save writes res under a fresh run ID and returns the ID.
func (s *Store) Save(cfg experiment.Config, res *experiment.Result, runErr error) (string, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Model:      res.Model,
		Integrator: res.Integrator,
		Timestamp:  s.now(),
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		NewtonMode: cfg.Options.NewtonMode.String(),
		Params:     cfg.Params,
		Columns:    res.Columns,
		Stats:      res.Stats,
		Metrics:    res.Metrics,
		WallTime:   res.Duration.String(),
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteCSV(f, res.Columns, res.Times, res.States); err != nil {
		return "", err
	}
	return runID, f.Close()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

// WriteCSV writes a time column followed by columns, one row per sample.
func WriteCSV(w io.Writer, columns []string, times []float64, states [][]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time"}, columns...)); err != nil {
		return err
	}
	for i := range states {
		row := make([]string, 0, len(states[i])+1)
		row = append(row, strconv.FormatFloat(times[i], 'g', -1, 64))
		for _, val := range states[i] {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// List returns the stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0, len(entries))
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
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadStates reads states.csv back as columns, times and rows.
func (s *Store) LoadStates(runID string) ([]string, []float64, [][]float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil, fmt.Errorf("storage: %s: empty states file", runID)
	}

	columns := records[0][1:]
	times := make([]float64, 0, len(records)-1)
	states := make([][]float64, 0, len(records)-1)
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("storage: %s: row %d column %d: %w", runID, i+1, j, err)
			}
			row[j] = v
		}
		times = append(times, row[0])
		states = append(states, row[1:])
	}
	return columns, times, states, nil
}

// ExportCSV copies the stored states of runID to w.
func (s *Store) ExportCSV(runID string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

type ExportData struct {
	Meta    RunMetadata `json:"meta"`
	Columns []string    `json:"columns"`
	Times   []float64   `json:"times"`
	States  [][]float64 `json:"states"`
}

// ExportJSON writes the metadata and the trajectory of runID as one JSON
// document.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	cols, times, states, err := s.LoadStates(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{Meta: *meta, Columns: cols, Times: times, States: states})
}
