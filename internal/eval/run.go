package eval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ndelia/snaplens/internal/gemini"
)

// Analyzer matches the analysis client's contract: it cannot fail, only
// degrade.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) gemini.AnalysisResult
}

// Result is the outcome of analyzing one labeled image.
type Result struct {
	ImagePath string
	Label     string
	Title     string
	Entity    bool
	Match     bool
	Err       error
}

// Summary aggregates a run over a dataset.
type Summary struct {
	Total      int
	Entities   int
	Matches    int
	ReadErrors int
}

// Run analyzes every record in the dataset with bounded concurrency and
// scores how often the smart-card title matches the expected label. Relative
// paths in the dataset are resolved against the dataset file's directory.
func Run(ctx context.Context, analyzer Analyzer, datasetPath string, limit, concurrency int) (Summary, []Result, error) {
	records, err := NewLoader(datasetPath).Load()
	if err != nil {
		return Summary{}, nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	slog.Info("Starting evaluation run", "dataset", datasetPath, "records", len(records), "concurrency", concurrency)

	baseDir := filepath.Dir(datasetPath)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)
	resultsChan := make(chan Result, len(records))

	for i, record := range records {
		wg.Add(1)
		go func(idx int, record Record) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			slog.Info("Analyzing image", "path", record.ImagePath, "progress", fmt.Sprintf("%d/%d", idx+1, len(records)))
			resultsChan <- evalRecord(ctx, analyzer, baseDir, record)
		}(i, record)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var results []Result
	for result := range resultsChan {
		results = append(results, result)
	}

	return summarize(results), results, nil
}

func evalRecord(ctx context.Context, analyzer Analyzer, baseDir string, record Record) Result {
	result := Result{ImagePath: record.ImagePath, Label: record.Label}

	path := record.ImagePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	image, err := os.ReadFile(path)
	if err != nil {
		result.Err = fmt.Errorf("failed to read image: %w", err)
		return result
	}

	analysis := analyzer.Analyze(ctx, image)
	if analysis.Analysis != nil {
		result.Entity = true
		result.Title = analysis.Analysis.Title
		result.Match = titlesMatch(result.Title, record.Label)
	}
	return result
}

// titlesMatch compares a generated title to the expected label, ignoring
// case and accepting either containing the other.
func titlesMatch(title, label string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	l := strings.ToLower(strings.TrimSpace(label))
	if t == "" || l == "" {
		return false
	}
	return strings.Contains(t, l) || strings.Contains(l, t)
}

func summarize(results []Result) Summary {
	summary := Summary{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			summary.ReadErrors++
			continue
		}
		if r.Entity {
			summary.Entities++
		}
		if r.Match {
			summary.Matches++
		}
	}
	return summary
}

// Print writes a human-readable run summary to stdout.
func (s Summary) Print() {
	fmt.Printf("\nEvaluation summary\n")
	fmt.Printf("  images analyzed:  %d\n", s.Total)
	fmt.Printf("  entity detected:  %d\n", s.Entities)
	fmt.Printf("  title matches:    %d\n", s.Matches)
	if s.Total > 0 {
		fmt.Printf("  match rate:       %.1f%%\n", 100*float64(s.Matches)/float64(s.Total))
	}
	if s.ReadErrors > 0 {
		fmt.Printf("  unreadable files: %d\n", s.ReadErrors)
	}
}
