// Package analysis turns saved transcripts into decay statistics: per-turn
// metric means for each (scenario, branch) pair and a least-squares slope per
// numeric metric, with early-versus-late window comparison. Backs the report
// command.
package analysis

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/types"
)

// PushbackMetric is the series the per-turn table reports.
const PushbackMetric = "pushback_level"

// Turn windows for the early/late comparison. A negative slope alone does not
// distinguish drift from noise; comparing the first turns against the last
// ones gives a second, cruder read on the same trajectory.
const (
	earlyTurnMax = 2
	lateTurnMin  = 4
)

// Counters and reserved keys are tracked but never reported as decay series.
var skippedMetrics = map[string]bool{
	types.MetricTurn:          true,
	types.MetricBranch:        true,
	types.MetricTokensPrimary: true,
	types.MetricTokensProbe:   true,
}

// Group aggregates every transcript recorded for one (scenario, branch) pair,
// across any number of runs and models.
type Group struct {
	Scenario    string
	Branch      string
	Transcripts int
	MaxTurn     int

	// metric name -> turn index -> observed values
	samples map[string]map[int][]float64
}

func newGroup(scenarioName, branch string) *Group {
	return &Group{
		Scenario: scenarioName,
		Branch:   branch,
		MaxTurn:  -1,
		samples:  make(map[string]map[int][]float64),
	}
}

func (g *Group) addRecord(rec types.MetricRecord) {
	turn, ok := rec.Int(types.MetricTurn)
	if !ok {
		return
	}
	if turn > g.MaxTurn {
		g.MaxTurn = turn
	}
	for name := range rec {
		if skippedMetrics[name] {
			continue
		}
		value, ok := rec.Float(name)
		if !ok {
			continue
		}
		byTurn := g.samples[name]
		if byTurn == nil {
			byTurn = make(map[int][]float64)
			g.samples[name] = byTurn
		}
		byTurn[turn] = append(byTurn[turn], value)
	}
}

// Metrics returns the numeric series observed in this group, sorted by name.
func (g *Group) Metrics() []string {
	names := make([]string, 0, len(g.samples))
	for name := range g.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mean returns the mean value of a metric at one turn index.
func (g *Group) Mean(metric string, turn int) (float64, bool) {
	values := g.samples[metric][turn]
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// MeanPushback returns the mean pushback level at one turn index.
func (g *Group) MeanPushback(turn int) (float64, bool) {
	return g.Mean(PushbackMetric, turn)
}

// Slope fits value = a*turn + b by least squares over every observation of
// the metric and returns a. Needs at least two observations spread over more
// than one turn.
func (g *Group) Slope(metric string) (float64, bool) {
	var n, sumX, sumY, sumXY, sumXX float64
	for turn, values := range g.samples[metric] {
		x := float64(turn)
		for _, y := range values {
			n++
			sumX += x
			sumY += y
			sumXY += x * y
			sumXX += x * x
		}
	}
	if n < 2 {
		return 0, false
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (n*sumXY - sumX*sumY) / denom, true
}

// WindowMeans returns the metric's mean over the early turns (index <= 2) and
// over the late turns (index >= 4). Reports false unless both windows have
// observations.
func (g *Group) WindowMeans(metric string) (early, late float64, ok bool) {
	var earlySum, lateSum float64
	var earlyN, lateN int
	for turn, values := range g.samples[metric] {
		for _, v := range values {
			if turn <= earlyTurnMax {
				earlySum += v
				earlyN++
			}
			if turn >= lateTurnMin {
				lateSum += v
				lateN++
			}
		}
	}
	if earlyN == 0 || lateN == 0 {
		return 0, 0, false
	}
	return earlySum / float64(earlyN), lateSum / float64(lateN), true
}

// DecayPercent is the relative drop from the early window to the late one,
// as a percentage of the early mean. Positive values mean the metric fell.
func (g *Group) DecayPercent(metric string) (float64, bool) {
	early, late, ok := g.WindowMeans(metric)
	if !ok || early == 0 {
		return 0, false
	}
	return (early - late) / early * 100, true
}

// Summary is the aggregate view over a set of transcripts.
type Summary struct {
	Groups []*Group
}

// Summarize buckets transcript metric records by (scenario, branch). Groups
// come back sorted by scenario name, then branch id.
func Summarize(transcripts []*results.Transcript) *Summary {
	type key struct{ scenario, branch string }
	byKey := make(map[key]*Group)
	for _, t := range transcripts {
		k := key{t.Scenario, t.Branch}
		g := byKey[k]
		if g == nil {
			g = newGroup(t.Scenario, t.Branch)
			byKey[k] = g
		}
		g.Transcripts++
		for _, rec := range t.Metrics {
			g.addRecord(rec)
		}
	}

	groups := make([]*Group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Scenario != groups[j].Scenario {
			return groups[i].Scenario < groups[j].Scenario
		}
		return groups[i].Branch < groups[j].Branch
	})
	return &Summary{Groups: groups}
}

// SummarizeDir loads every transcript under a directory and summarizes it.
func SummarizeDir(dir string) (*Summary, error) {
	transcripts, err := results.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return Summarize(transcripts), nil
}

// Table layout.
const (
	tabMinWidth = 0
	tabWidth    = 4
	tabPadding  = 2
)

const missingCell = "-"

// Render writes two aligned tables: mean pushback by turn, then per-metric
// slopes with the early/late comparison.
func (s *Summary) Render(w io.Writer) error {
	if len(s.Groups) == 0 {
		_, err := fmt.Fprintln(w, "no transcripts found")
		return err
	}

	if err := s.renderPushback(w); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return s.renderSlopes(w)
}

func (s *Summary) renderPushback(w io.Writer) error {
	maxTurn := 0
	for _, g := range s.Groups {
		if g.MaxTurn > maxTurn {
			maxTurn = g.MaxTurn
		}
	}

	header := []string{"SCENARIO", "BRANCH", "RUNS"}
	for turn := 0; turn <= maxTurn; turn++ {
		header = append(header, fmt.Sprintf("T%d", turn))
	}

	rows := make([][]string, 0, len(s.Groups))
	for _, g := range s.Groups {
		row := []string{g.Scenario, g.Branch, fmt.Sprintf("%d", g.Transcripts)}
		for turn := 0; turn <= maxTurn; turn++ {
			cell := missingCell
			if mean, ok := g.MeanPushback(turn); ok {
				cell = fmt.Sprintf("%.2f", mean)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}

	if _, err := fmt.Fprintln(w, "MEAN PUSHBACK BY TURN"); err != nil {
		return err
	}
	return writeTable(w, header, rows)
}

func (s *Summary) renderSlopes(w io.Writer) error {
	header := []string{"SCENARIO", "BRANCH", "METRIC", "SLOPE", "EARLY", "LATE", "DECAY%"}
	var rows [][]string
	for _, g := range s.Groups {
		for _, metric := range g.Metrics() {
			slope, ok := g.Slope(metric)
			if !ok {
				continue
			}
			row := []string{g.Scenario, g.Branch, metric, fmt.Sprintf("%+.3f", slope)}
			if early, late, ok := g.WindowMeans(metric); ok {
				row = append(row, fmt.Sprintf("%.2f", early), fmt.Sprintf("%.2f", late))
			} else {
				row = append(row, missingCell, missingCell)
			}
			if pct, ok := g.DecayPercent(metric); ok {
				row = append(row, fmt.Sprintf("%.1f", pct))
			} else {
				row = append(row, missingCell)
			}
			rows = append(rows, row)
		}
	}

	if _, err := fmt.Fprintln(w, "DECAY SLOPES"); err != nil {
		return err
	}
	return writeTable(w, header, rows)
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, tabMinWidth, tabWidth, tabPadding, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}
	dashes := make([]string, len(header))
	for i, h := range header {
		dashes[i] = strings.Repeat("-", len(h))
	}
	if _, err := fmt.Fprintln(tw, strings.Join(dashes, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
