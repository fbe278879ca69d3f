// Package export writes finished cases as CSV.
package export

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bft-labs/casebatch/internal/domain"
)

// ListSeparator joins list values inside one CSV cell.
const ListSeparator = ";"

// caseHeader holds the input columns written before the result keys.
var caseHeader = []string{"id", "profile", "evidence", "contributors", "deducible", "quantity", "theta", "labkitid"}

// Source iterates finished cases.
type Source interface {
	Results(ctx context.Context, fn func(domain.Case) error) error
}

// WriteCSV writes one row per finished case: the case columns followed by
// the sorted union of all result keys. Missing keys produce empty cells.
// It returns the number of rows written.
func WriteCSV(ctx context.Context, src Source, w io.Writer) (int, error) {
	keySet := make(map[string]struct{})
	err := src.Results(ctx, func(c domain.Case) error {
		for k := range c.Result {
			keySet[k] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("collect result keys: %w", err)
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cw := csv.NewWriter(w)
	header := append(append([]string(nil), caseHeader...), keys...)
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	rows := 0
	err = src.Results(ctx, func(c domain.Case) error {
		record := make([]string, 0, len(header))
		record = append(record,
			strconv.FormatInt(c.ID, 10),
			c.Profile,
			c.Evidence,
			strconv.Itoa(c.Contributors),
			strconv.FormatBool(c.Deducible),
			formatFloat(c.Quantity),
			formatFloat(c.Theta),
			c.LabKitID,
		)
		for _, k := range keys {
			v, ok := c.Result[k]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, FormatValue(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, fmt.Errorf("write results: %w", err)
	}

	cw.Flush()
	return rows, cw.Error()
}

// FormatValue renders a result value for a CSV cell. Binary values are
// written in standard base64.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case []any:
		return joinList(len(x), func(i int) any { return x[i] })
	case []string:
		return strings.Join(x, ListSeparator)
	case []float64:
		return joinList(len(x), func(i int) any { return x[i] })
	case []int64:
		return joinList(len(x), func(i int) any { return x[i] })
	case []int:
		return joinList(len(x), func(i int) any { return x[i] })
	case []bool:
		return joinList(len(x), func(i int) any { return x[i] })
	}
	return fmt.Sprint(v)
}

func joinList(n int, at func(int) any) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = FormatValue(at(i))
	}
	return strings.Join(parts, ListSeparator)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
