package domain

import (
	"fmt"
	"strings"
)

// Step is a named position in the application wizard. Steps form a fixed
// ordered sequence; advancing and retreating are edge traversals over that
// sequence rather than integer arithmetic, so the set of rendered steps and
// the state machine cannot drift apart.
type Step int

const (
	StepUnauthenticated Step = iota
	StepAuthenticated
	StepClassification
	StepServices
	StepGames
	StepExperience
	StepContact
	StepPersonal
	StepCommunityJoin
	StepPayment
	StepReview
	StepSubmitted
)

var stepNames = [...]string{
	StepUnauthenticated: "unauthenticated",
	StepAuthenticated:   "authenticated",
	StepClassification:  "classification",
	StepServices:        "services",
	StepGames:           "games",
	StepExperience:      "experience",
	StepContact:         "contact",
	StepPersonal:        "personal",
	StepCommunityJoin:   "community_join",
	StepPayment:         "payment",
	StepReview:          "review",
	StepSubmitted:       "submitted",
}

func (s Step) String() string {
	if s < StepUnauthenticated || s > StepSubmitted {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// ParseStep resolves a step name to its Step value.
func ParseStep(name string) (Step, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stepNames {
		if n == name {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", name)
}

// Next returns the following step. The review step has no forward edge:
// the only way out of review is the submit transition, and the submitted
// step is terminal.
func (s Step) Next() (Step, bool) {
	if s < StepUnauthenticated || s >= StepReview {
		return s, false
	}
	return s + 1, true
}

// Prev returns the preceding step, with a floor at the entry step. The
// terminal step has no backward edge; leaving it requires the explicit
// reopen-for-editing transition.
func (s Step) Prev() (Step, bool) {
	if s <= StepUnauthenticated || s > StepReview {
		return s, false
	}
	return s - 1, true
}

// Terminal reports whether the wizard has nothing further to collect.
func (s Step) Terminal() bool { return s == StepSubmitted }

// MarshalText implements encoding.TextMarshaler so steps render by name in
// JSON responses and logs.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(b []byte) error {
	parsed, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
