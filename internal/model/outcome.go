package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome is the mutually exclusive result classification of a test.
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
	OutcomeError
	OutcomeSkipped
	OutcomeXFailed
	OutcomeXPassed
	OutcomeRerun
)

// NumOutcomes is the number of Outcome variants.
const NumOutcomes = int(OutcomeRerun) + 1

// outcomeLabels are the labels pytest-html prints in the result column.
var outcomeLabels = [NumOutcomes]string{
	OutcomePassed:  "Passed",
	OutcomeFailed:  "Failed",
	OutcomeError:   "Error",
	OutcomeSkipped: "Skipped",
	OutcomeXFailed: "XFailed",
	OutcomeXPassed: "XPassed",
	OutcomeRerun:   "Rerun",
}

// Outcomes lists every variant in declaration order.
func Outcomes() []Outcome {
	all := make([]Outcome, NumOutcomes)
	for i := range all {
		all[i] = Outcome(i)
	}
	return all
}

func (o Outcome) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
	return outcomeLabels[o]
}

// Valid reports whether o is one of the declared variants.
func (o Outcome) Valid() bool {
	return o >= 0 && int(o) < NumOutcomes
}

// Passing reports whether the outcome counts as a green result.
func (o Outcome) Passing() bool {
	switch o {
	case OutcomePassed, OutcomeXFailed:
		return true
	default:
		return false
	}
}

// ParseOutcome maps a result label to an Outcome, ignoring case.
func ParseOutcome(label string) (Outcome, error) {
	label = strings.TrimSpace(label)
	for i, l := range outcomeLabels {
		if strings.EqualFold(l, label) {
			return Outcome(i), nil
		}
	}
	return 0, fmt.Errorf("unknown outcome: %q", label)
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	parsed, err := ParseOutcome(label)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// OutcomeSet is a set of outcome categories.
type OutcomeSet uint8

// SetOf returns the set holding the given outcomes.
func SetOf(outcomes ...Outcome) OutcomeSet {
	var s OutcomeSet
	for _, o := range outcomes {
		s = s.With(o)
	}
	return s
}

// With returns s with o added.
func (s OutcomeSet) With(o Outcome) OutcomeSet {
	return s | 1<<uint(o)
}

// Has reports whether o is in s.
func (s OutcomeSet) Has(o Outcome) bool {
	return s&(1<<uint(o)) != 0
}

// Empty reports whether s holds no outcome.
func (s OutcomeSet) Empty() bool {
	return s == 0
}

// Passing reports whether every outcome in s is passing.
func (s OutcomeSet) Passing() bool {
	for _, o := range s.Slice() {
		if !o.Passing() {
			return false
		}
	}
	return true
}

// Slice returns the members of s in declaration order.
func (s OutcomeSet) Slice() []Outcome {
	var out []Outcome
	for i := 0; i < NumOutcomes; i++ {
		if s.Has(Outcome(i)) {
			out = append(out, Outcome(i))
		}
	}
	return out
}

func (s OutcomeSet) String() string {
	members := s.Slice()
	if len(members) == 0 {
		return "-"
	}
	labels := make([]string, len(members))
	for i, o := range members {
		labels[i] = o.String()
	}
	return strings.Join(labels, "+")
}

// Tally holds one counter slot per Outcome.
type Tally [NumOutcomes]int

// Add adjusts the counter of every outcome in s by delta.
func (t *Tally) Add(s OutcomeSet, delta int) {
	for i := range t {
		if s.Has(Outcome(i)) {
			t[i] += delta
		}
	}
}

// Get returns the counter for o.
func (t Tally) Get(o Outcome) int {
	if !o.Valid() {
		return 0
	}
	return t[o]
}
