package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bft-labs/casebatch/internal/domain"
)

// Params is one parameter row for an evidence file.
type Params struct {
	Contributors int
	Deducible    bool
	Quantity     float64
	Theta        float64
	LabKitID     string
}

// Defaults fill optional parameter columns that are missing or empty.
type Defaults struct {
	Theta    float64
	LabKitID string
}

// Column names of the parameters file, matched case-insensitively.
const (
	colEvidence     = "evidence"
	colContributors = "contributors"
	colDeducible    = "deducible"
	colQuantity     = "quantity"
	colTheta        = "theta"
	colLabKitID     = "labkitid"
)

var requiredColumns = []string{colEvidence, colContributors, colDeducible, colQuantity}

// ReadParams parses a parameters CSV keyed by evidence file name. An evidence
// file may have several rows; each row produces its own set of cases.
func ReadParams(r io.Reader, defaults Defaults) (map[string][]Params, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: parameters file is empty", domain.ErrInvalidCase)
		}
		return nil, fmt.Errorf("read parameters header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: parameters file lacks column %q", domain.ErrInvalidCase, name)
		}
	}

	out := make(map[string][]Params)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parameters line %d: %w", line, err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		evidence := get(colEvidence)
		if evidence == "" {
			return nil, fmt.Errorf("%w: line %d: evidence is empty", domain.ErrInvalidCase, line)
		}

		p, err := parseRow(get, defaults)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out[evidence] = append(out[evidence], p)
	}
	return out, nil
}

func parseRow(get func(string) string, defaults Defaults) (Params, error) {
	p := Params{Theta: defaults.Theta, LabKitID: defaults.LabKitID}

	contributors, err := strconv.Atoi(get(colContributors))
	if err != nil {
		return Params{}, fmt.Errorf("%w: contributors %q", domain.ErrInvalidCase, get(colContributors))
	}
	p.Contributors = contributors

	p.Deducible, err = parseDeducible(get(colDeducible))
	if err != nil {
		return Params{}, err
	}

	p.Quantity, err = strconv.ParseFloat(get(colQuantity), 64)
	if err != nil {
		return Params{}, fmt.Errorf("%w: quantity %q", domain.ErrInvalidCase, get(colQuantity))
	}

	if v := get(colTheta); v != "" {
		p.Theta, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return Params{}, fmt.Errorf("%w: theta %q", domain.ErrInvalidCase, v)
		}
	}
	if v := get(colLabKitID); v != "" {
		p.LabKitID = v
	}
	return p, nil
}

func parseDeducible(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "d", "y", "yes":
		return true, nil
	case "nd", "n", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: deducible %q", domain.ErrInvalidCase, v)
	}
	return b, nil
}
