// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one mechanism in a corpus export.
type ExportEntry struct {
	ID                    int64  `json:"id" yaml:"id"`
	PaperID               int64  `json:"paper_id" yaml:"paper_id"`
	PaperTitle            string `json:"paper_title,omitempty" yaml:"paper_title,omitempty"`
	Domain                string `json:"domain" yaml:"domain"`
	Description           string `json:"description" yaml:"description"`
	StructuralDescription string `json:"structural_description,omitempty" yaml:"structural_description,omitempty"`
	CanonicalMechanism    string `json:"canonical_mechanism,omitempty" yaml:"canonical_mechanism,omitempty"`
	HasEquation           bool   `json:"has_equation" yaml:"has_equation"`
	FalsePositive         *bool  `json:"false_positive,omitempty" yaml:"false_positive,omitempty"`
	Embedded              bool   `json:"embedded" yaml:"embedded"`
}

const exportLimit = 1000000

// ExportYAML writes the filtered corpus to dataDir/index/export.yaml and
// returns the path.
func (s *Store) ExportYAML(ctx context.Context, opts SearchOptions) (string, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dataDir, indexDir, "export.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the filtered corpus to dataDir/index/export.json and
// returns the path.
func (s *Store) ExportJSON(ctx context.Context, opts SearchOptions) (string, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dataDir, indexDir, "export.json")
	return path, os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts SearchOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	results, err := s.Search(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{
			ID:                    r.ID,
			PaperID:               r.PaperID,
			PaperTitle:            r.PaperTitle,
			Domain:                r.Domain,
			Description:           r.Description,
			StructuralDescription: r.StructuralDescription,
			CanonicalMechanism:    r.CanonicalMechanism,
			HasEquation:           r.HasEquation,
			FalsePositive:         r.FalsePositive,
			Embedded:              r.HasEmbedding(),
		}
	}
	return entries, nil
}
