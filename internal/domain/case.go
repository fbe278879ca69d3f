package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultTheta is the theta correction applied when ingestion parameters omit one.
const DefaultTheta = 0.01

// Case is a single (profile, evidence) work unit.
// Input fields are immutable once the case is stored; Claimant and Result
// carry the operational state owned by the store.
type Case struct {
	// ID is the store-assigned row identifier
	ID int64 `json:"id" yaml:"id"`

	// Profile is the path to the reference profile file
	Profile string `json:"profile" yaml:"profile"`

	// Evidence is the path to the evidence (replicates) file
	Evidence string `json:"evidence" yaml:"evidence"`

	// Contributors is the number of contributors in the evidence
	Contributors int `json:"contributors" yaml:"contributors"`

	// Deducible reports whether the contributor count is deducible from the evidence
	Deducible bool `json:"deducible" yaml:"deducible"`

	// Quantity is the amount of genetic material in picograms
	Quantity float64 `json:"quantity" yaml:"quantity"`

	// Theta is the correction parameter
	Theta float64 `json:"theta" yaml:"theta"`

	// LabKitID optionally selects a lab kit; empty means the executor default
	LabKitID string `json:"labkitid,omitempty" yaml:"labkitid,omitempty"`

	// Claimant is the identifier of the worker owning the case, empty if unclaimed
	Claimant string `json:"claimant,omitempty" yaml:"claimant,omitempty"`

	// Result is the executor output, nil until the case is finished
	Result Result `json:"result,omitempty" yaml:"result,omitempty"`
}

// Finished returns true if the case has a result and is therefore terminal.
func (c Case) Finished() bool {
	return c.Result != nil
}

// Claimed returns true if a worker currently holds the case.
func (c Case) Claimed() bool {
	return c.Claimant != ""
}

// Claimable returns true if the case may be handed to a worker.
func (c Case) Claimable() bool {
	return !c.Claimed() && !c.Finished()
}

// Validate checks the input fields.
func (c Case) Validate() error {
	switch {
	case strings.TrimSpace(c.Profile) == "":
		return fmt.Errorf("%w: profile is required", ErrInvalidCase)
	case strings.TrimSpace(c.Evidence) == "":
		return fmt.Errorf("%w: evidence is required", ErrInvalidCase)
	case c.Contributors <= 0:
		return fmt.Errorf("%w: contributors must be positive, got %d", ErrInvalidCase, c.Contributors)
	case c.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidCase, c.Quantity)
	case c.Theta < 0:
		return fmt.Errorf("%w: theta must not be negative, got %v", ErrInvalidCase, c.Theta)
	}
	return nil
}

// Name returns a filename-safe label that identifies the case inputs.
// Executors use it to name their output so leftovers can be matched later.
func (c Case) Name() string {
	deducible := "ND"
	if c.Deducible {
		deducible = "D"
	}
	return fmt.Sprintf("C_%s.E_%s.Q_%s.%s.N_%d.T_%s",
		stem(c.Profile),
		stem(c.Evidence),
		strconv.FormatFloat(c.Quantity, 'f', -1, 64),
		deducible,
		c.Contributors,
		strconv.FormatFloat(c.Theta, 'f', -1, 64),
	)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
