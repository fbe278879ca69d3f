// Package ingest builds the case queue from profile and evidence files.
//
// Every profile is paired with every evidence file that has a row in the
// parameters CSV. Evidence files without parameters are skipped and reported.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
)

// DefaultPattern matches CSV files at any depth.
const DefaultPattern = "**/*.csv"

// Config describes where the inputs live.
type Config struct {
	ProfileDir      string
	ProfilePattern  string
	EvidenceDir     string
	EvidencePattern string

	// ParamsFile is the parameters CSV keyed by evidence file name.
	ParamsFile string

	// Defaults apply to rows without Theta or LabKitId.
	Defaults Defaults

	// SaveEveryEvidence commits after each evidence file instead of once at
	// the end.
	SaveEveryEvidence bool
}

// Inserter is the part of the store ingestion writes to.
type Inserter interface {
	Create(ctx context.Context, c domain.Case) (int64, error)
	Save(ctx context.Context) error
}

// Summary reports what an ingestion did.
type Summary struct {
	Profiles int
	Evidence int
	Cases    int
	Skipped  []string
}

// Run globs the inputs, reads the parameters and inserts the cartesian
// product of profiles and parameterised evidence files.
func Run(ctx context.Context, cfg Config, store Inserter, logger ports.Logger) (Summary, error) {
	if cfg.ProfileDir == "" || cfg.EvidenceDir == "" || cfg.ParamsFile == "" {
		return Summary{}, fmt.Errorf("%w: profile dir, evidence dir and parameters file are required", domain.ErrInvalidConfig)
	}

	f, err := os.Open(cfg.ParamsFile)
	if err != nil {
		return Summary{}, fmt.Errorf("open parameters: %w", err)
	}
	params, err := ReadParams(f, cfg.Defaults)
	f.Close()
	if err != nil {
		return Summary{}, err
	}

	profiles, err := Glob(cfg.ProfileDir, cfg.ProfilePattern)
	if err != nil {
		return Summary{}, err
	}
	evidence, err := Glob(cfg.EvidenceDir, cfg.EvidencePattern)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Profiles: len(profiles), Evidence: len(evidence)}
	logger.Info("ingesting cases",
		ports.Int("profiles", len(profiles)),
		ports.Int("evidence", len(evidence)),
	)

	for _, ev := range evidence {
		rows := lookup(params, ev)
		if len(rows) == 0 {
			logger.Warn("no parameters for evidence, skipping", ports.String("evidence", ev))
			sum.Skipped = append(sum.Skipped, ev)
			continue
		}

		for _, p := range rows {
			for _, profile := range profiles {
				if err := ctx.Err(); err != nil {
					return sum, err
				}
				_, err := store.Create(ctx, domain.Case{
					Profile:      profile,
					Evidence:     ev,
					Contributors: p.Contributors,
					Deducible:    p.Deducible,
					Quantity:     p.Quantity,
					Theta:        p.Theta,
					LabKitID:     p.LabKitID,
				})
				if err != nil {
					return sum, fmt.Errorf("insert %s x %s: %w", filepath.Base(profile), filepath.Base(ev), err)
				}
				sum.Cases++
			}
		}

		if cfg.SaveEveryEvidence {
			if err := store.Save(ctx); err != nil {
				return sum, err
			}
			logger.Debug("saved evidence", ports.String("evidence", ev), ports.Int("cases", sum.Cases))
		}
	}

	if err := store.Save(ctx); err != nil {
		return sum, err
	}
	logger.Info("ingestion complete",
		ports.Int("cases", sum.Cases),
		ports.Int("skipped", len(sum.Skipped)),
	)
	return sum, nil
}

// Glob returns the files under dir matching pattern, sorted, as paths
// joined with dir. An empty pattern means DefaultPattern.
func Glob(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: invalid pattern %q", domain.ErrInvalidConfig, pattern)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q in %s: %w", pattern, dir, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(paths)
	return paths, nil
}

// lookup matches parameters by file name, then by file name without
// extension.
func lookup(params map[string][]Params, path string) []Params {
	base := filepath.Base(path)
	if rows, ok := params[base]; ok {
		return rows
	}
	return params[base[:len(base)-len(filepath.Ext(base))]]
}
