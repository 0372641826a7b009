package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/shanefrancis93/anchor-research/types"
)

// MetricRow is one flattened turn-metric row of a batch run, tagged with the
// identity columns the CSV leads with.
type MetricRow struct {
	RunID    string
	Model    string
	Provider string
	Scenario string
	Branch   string
	Metrics  types.MetricRecord
}

// baseColumns are the fixed leading CSV columns, in order.
var baseColumns = []string{"run_id", "model", "provider", "scenario", "branch", "turn"}

// WriteMetricsCSV writes metric rows as CSV. The header is the base columns
// followed by every metric key seen across the rows in sorted order, so the
// column set is stable for a given input regardless of row order.
func WriteMetricsCSV(w io.Writer, rows []MetricRow) error {
	columns := metricColumns(rows)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, baseColumns...), columns...)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		turn := ""
		if n, ok := row.Metrics.Int(types.MetricTurn); ok {
			turn = strconv.Itoa(n)
		}
		record := []string{row.RunID, row.Model, row.Provider, row.Scenario, row.Branch, turn}
		for _, col := range columns {
			record = append(record, formatMetricValue(row.Metrics[col]))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveMetricsCSV writes metric rows to a new file at path.
func SaveMetricsCSV(path string, rows []MetricRow) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer f.Close()

	return WriteMetricsCSV(f, rows)
}

// metricColumns collects metric keys across rows, excluding turn and branch
// which already appear as base columns.
func metricColumns(rows []MetricRow) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row.Metrics {
			if k == types.MetricTurn || k == types.MetricBranch {
				continue
			}
			seen[k] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

func formatMetricValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
