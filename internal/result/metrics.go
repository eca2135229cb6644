package result

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Variant string

const (
	Proposed Variant = "proposed"
	Baseline Variant = "baseline"
)

func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Proposed, Baseline:
		return Variant(s), nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// Metric keys, in the order they are written.
const (
	KeyExecutionTime    = "execution_time"
	KeyLoopExpanderTime = "loop_expander_time"
	KeySpectectorTime   = "spectector_time"
	KeyLeak             = "leak"
	KeySuccessful       = "successful"
	KeyTimeout          = "timeout"
)

var Keys = []string{
	KeyExecutionTime,
	KeyLoopExpanderTime,
	KeySpectectorTime,
	KeyLeak,
	KeySuccessful,
	KeyTimeout,
}

var ErrMissingMetric = errors.New("metric missing from record")

// Metrics summarizes one (input, variant) run. Times are wall-clock seconds.
// The zero value is the default record written when a run fails early.
type Metrics struct {
	ExecutionTime    float64
	LoopExpanderTime float64
	SpectectorTime   float64
	Leak             bool
	Successful       bool
	Timeout          bool
}

// Record converts m to its textual key/value form.
func (m Metrics) Record() Record {
	return Record{
		{KeyExecutionTime, FormatFloat(m.ExecutionTime)},
		{KeyLoopExpanderTime, FormatFloat(m.LoopExpanderTime)},
		{KeySpectectorTime, FormatFloat(m.SpectectorTime)},
		{KeyLeak, FormatBool(m.Leak)},
		{KeySuccessful, FormatBool(m.Successful)},
		{KeyTimeout, FormatBool(m.Timeout)},
	}
}

type Entry struct {
	Key   string
	Value string
}

// Record is an ordered metric/value list as stored on disk. Records read
// back from other runs may lack keys, so lookups report presence.
type Record []Entry

func (r Record) Get(key string) (string, bool) {
	for _, e := range r {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value of key in place or appends it.
func (r *Record) Set(key, value string) {
	for i := range *r {
		if (*r)[i].Key == key {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Entry{Key: key, Value: value})
}

func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, e := range r {
		keys[i] = e.Key
	}
	return keys
}

// Metrics parses r back into a Metrics value. Every key must be present.
func (r Record) Metrics() (Metrics, error) {
	var m Metrics
	floats := []struct {
		key string
		dst *float64
	}{
		{KeyExecutionTime, &m.ExecutionTime},
		{KeyLoopExpanderTime, &m.LoopExpanderTime},
		{KeySpectectorTime, &m.SpectectorTime},
	}
	for _, f := range floats {
		v, ok := r.Get(f.key)
		if !ok {
			return Metrics{}, fmt.Errorf("%w: %s", ErrMissingMetric, f.key)
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Metrics{}, fmt.Errorf("metric %s: %w", f.key, err)
		}
		*f.dst = parsed
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{KeyLeak, &m.Leak},
		{KeySuccessful, &m.Successful},
		{KeyTimeout, &m.Timeout},
	}
	for _, b := range bools {
		v, ok := r.Get(b.key)
		if !ok {
			return Metrics{}, fmt.Errorf("%w: %s", ErrMissingMetric, b.key)
		}
		parsed, err := ParseBool(v)
		if err != nil {
			return Metrics{}, fmt.Errorf("metric %s: %w", b.key, err)
		}
		*b.dst = parsed
	}
	return m, nil
}

// FormatFloat renders v in shortest round-trip form with at least one
// decimal place, so 0 is written as "0.0".
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts the True/False spelling written by FormatBool as well as
// anything strconv.ParseBool understands.
func ParseBool(s string) (bool, error) {
	switch s {
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	return strconv.ParseBool(s)
}
