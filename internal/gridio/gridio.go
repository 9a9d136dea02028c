// Package gridio reads and writes grid feature files: the JSON boundary
// between external data producers and the analysis registry. Only plain
// id/coordinate/value records cross this boundary.
package gridio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/avoin/heatplan/internal/grid"
)

// FeatureFile is the on-disk grid format. Coordinates are planar metric;
// features without a heat_exposure value are carried through and excluded
// later at registry build time.
type FeatureFile struct {
	Name      string         `json:"name,omitempty"`
	CellSizeM float64        `json:"cell_size_m"`
	Features  []grid.Feature `json:"features"`
}

// Load reads a feature file from disk.
func Load(path string) (*FeatureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid file: %w", err)
	}

	var ff FeatureFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse grid file %s: %w", path, err)
	}

	slog.Info("grid file loaded", "path", path, "features", len(ff.Features), "cell_size_m", ff.CellSizeM)
	return &ff, nil
}

// Write saves a feature file to disk.
func Write(path string, ff *FeatureFile) error {
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("encode grid file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write grid file: %w", err)
	}
	return nil
}
