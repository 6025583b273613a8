// Package storage persists recorded runs on disk: one directory per run
// holding metadata.json and trajectory.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/san-kum/odomctl/internal/odometry"
)

var ErrRunNotFound = errors.New("storage: run not found")

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
)

var trajectoryHeader = []string{"time", "x", "y", "theta", "target", "input", "output"}

type Store struct {
	baseDir string
	newID   func() string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, newID: uuid.NewString}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata describes a recorded run.
type RunMetadata struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	Timestamp  time.Time          `json:"timestamp"`
	Odometry   string             `json:"odometry"`
	Integrator string             `json:"integrator"`
	Source     string             `json:"source"`
	Target     float64            `json:"target"`
	Period     time.Duration      `json:"period"`
	FinalPose  odometry.OdomState `json:"final_pose"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Point is one row of a trajectory. Target, Input and Output belong to the
// loop that was active when the sample was taken.
type Point struct {
	Time   float64 `json:"time"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Theta  float64 `json:"theta"`
	Target float64 `json:"target"`
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

func (p Point) record() []string {
	vals := []float64{p.Time, p.X, p.Y, p.Theta, p.Target, p.Input, p.Output}
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return row
}

// Save writes a new run and returns its ID. meta.ID and meta.Timestamp are
// filled in when empty.
func (s *Store) Save(meta RunMetadata, traj []Point) (id string, err error) {
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%s", meta.Kind, s.newID())
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer func() { err = multierr.Append(err, metaFile.Close()) }()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, trajectoryFile))
	if err != nil {
		return "", err
	}
	defer func() { err = multierr.Append(err, csvFile.Close()) }()

	w := csv.NewWriter(csvFile)
	if err := w.Write(trajectoryHeader); err != nil {
		return "", err
	}
	for _, p := range traj {
		if err := w.Write(p.record()); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns every readable run, oldest first.
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

	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: decoding %s metadata: %w", runID, err)
	}
	return &meta, nil
}

// LoadTrajectory reads the trajectory of a run. Malformed rows are skipped.
func (s *Store) LoadTrajectory(runID string) ([]Point, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, max(len(records)-1, 0))
	for i := 1; i < len(records); i++ {
		if p, ok := parsePoint(records[i]); ok {
			points = append(points, p)
		}
	}
	return points, nil
}

func parsePoint(record []string) (Point, bool) {
	if len(record) != len(trajectoryHeader) {
		return Point{}, false
	}
	vals := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Point{}, false
		}
		vals[i] = v
	}
	return Point{
		Time: vals[0], X: vals[1], Y: vals[2], Theta: vals[3],
		Target: vals[4], Input: vals[5], Output: vals[6],
	}, true
}
