// Package report aggregates evaluation results into run summaries,
// writes report files, and persists reports to memory or Postgres.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/instantcocoa/verdict/eval"
)

// Summary holds the aggregate statistics for one evaluation run.
type Summary struct {
	TotalCount           int     `json:"total_count"`
	CorrectCount         int     `json:"correct_count"`
	Accuracy             float64 `json:"accuracy"`
	AverageScore         float64 `json:"average_score"`
	AverageInferenceTime float64 `json:"average_inference_time"`
	BadcaseCount         int     `json:"badcase_count"`

	// DetailMeans averages every numeric detail metric (e.g. ROUGE
	// components) across the results that report it.
	DetailMeans map[string]float64 `json:"detail_means,omitempty"`
}

// Aggregate computes the run summary from the full result set.
func Aggregate(results []*eval.Result) Summary {
	var s Summary
	s.TotalCount = len(results)
	if len(results) == 0 {
		return s
	}

	scoreSum := 0.0
	scoreCount := 0
	inferenceSum := 0.0
	detailSums := make(map[string]float64)
	detailCounts := make(map[string]int)

	for _, r := range results {
		if r.Score != nil {
			scoreSum += *r.Score
			scoreCount++
		}
		if !r.IsBadcase {
			s.CorrectCount++
		}
		inferenceSum += r.InferenceSecs

		for key, v := range r.Details {
			if f, ok := v.(float64); ok {
				detailSums[key] += f
				detailCounts[key]++
			}
		}
	}

	if scoreCount > 0 {
		s.AverageScore = scoreSum / float64(scoreCount)
	}
	s.Accuracy = float64(s.CorrectCount) / float64(len(results))
	s.AverageInferenceTime = inferenceSum / float64(len(results))
	s.BadcaseCount = len(results) - s.CorrectCount

	if len(detailSums) > 0 {
		s.DetailMeans = make(map[string]float64, len(detailSums))
		for key, sum := range detailSums {
			s.DetailMeans[key] = sum / float64(detailCounts[key])
		}
	}
	return s
}

// Report is the full record of one evaluation run.
type Report struct {
	ID        string         `json:"id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Dataset   string         `json:"dataset,omitempty"`
	Model     string         `json:"model,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Config    map[string]any `json:"config"`
	Summary   Summary        `json:"summary"`
	Badcases  []*eval.Result `json:"badcases"`
	Results   []*eval.Result `json:"results"`

	CreatedAt time.Time `json:"-"`
}

// Build assembles a report from run output. The config is redacted
// before it is embedded.
func Build(config map[string]any, results, badcases []*eval.Result) *Report {
	now := time.Now()
	return &Report{
		Timestamp: now.Format("20060102_150405"),
		Config:    RedactConfig(config),
		Summary:   Aggregate(results),
		Badcases:  badcases,
		Results:   results,
		CreatedAt: now,
	}
}

// sensitiveConfigKeys are dropped from the embedded config: local
// paths and service locations do not belong in a shareable report.
var sensitiveConfigKeys = map[string]bool{
	"report_dir":      true,
	"checkpoint_path": true,
	"scoring_module":  true,
	"database_url":    true,
	"api_key":         true,
}

// RedactConfig returns a copy of cfg without sensitive keys.
func RedactConfig(cfg map[string]any) map[string]any {
	safe := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if sensitiveConfigKeys[k] {
			continue
		}
		safe[k] = v
	}
	return safe
}

// WriteFile writes the report as JSON under dir and returns the path.
func (r *Report) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("report_%s.json", r.Timestamp))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
