package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run        RunMetadata `json:"run"`
	Steps      int         `json:"steps"`
	Trajectory []Point     `json:"trajectory"`
}

// ExportJSON writes a run and its trajectory as one indented JSON document.
func ExportJSON(w io.Writer, meta RunMetadata, traj []Point) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{
		Run:        meta,
		Steps:      len(traj),
		Trajectory: traj,
	})
}

// Columns splits a trajectory into the time, target and input series used
// by step-response analysis.
func Columns(traj []Point) (times, targets, inputs, outputs []float64) {
	times = make([]float64, len(traj))
	targets = make([]float64, len(traj))
	inputs = make([]float64, len(traj))
	outputs = make([]float64, len(traj))
	for i, p := range traj {
		times[i] = p.Time
		targets[i] = p.Target
		inputs[i] = p.Input
		outputs[i] = p.Output
	}
	return times, targets, inputs, outputs
}
