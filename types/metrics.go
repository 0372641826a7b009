package types

// Reserved metric keys written by the turn processor before evaluator output
// is merged in. Evaluators may overwrite them, though none of the built-in
// ones do.
const (
	MetricTurn          = "turn"
	MetricBranch        = "branch"
	MetricTokensPrimary = "tokens_primary"
	MetricTokensProbe   = "tokens_probe"
)

// MetricRecord is one turn's flat metric mapping: metric name to a numeric or
// string value, tagged with the branch id and turn index under the reserved
// keys above. Records are append-only members of branch state and form the
// per-branch time series used for decay analysis.
type MetricRecord map[string]any

// Merge copies every entry of other into r, overwriting existing keys.
// Later evaluators in a run's evaluator list therefore win key collisions.
func (r MetricRecord) Merge(other map[string]any) {
	for k, v := range other {
		r[k] = v
	}
}

// Clone returns a shallow copy of the record.
func (r MetricRecord) Clone() MetricRecord {
	out := make(MetricRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Int reads an integer-valued metric, tolerating the float64 values that
// appear after a JSON round trip.
func (r MetricRecord) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Float reads a numeric metric as float64.
func (r MetricRecord) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
