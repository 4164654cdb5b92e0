// Package settings defines the fsGroup policy configuration: the active rule and the
// integer ranges it permits.
package settings

import (
	"errors"
	"fmt"
)

// ErrInvalidSettings classifies every configuration error returned by Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// ErrNoRanges is returned when a default is requested from an empty range list.
var ErrNoRanges = errors.New("no ranges configured")

// Rule names as they appear in the configuration schema.
const (
	RuleRunAsAny  = "RunAsAny"
	RuleMayRunAs  = "MayRunAs"
	RuleMustRunAs = "MustRunAs"
)

// ValidationError is a configuration error. Its message is shown verbatim to the operator.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Is reports ErrInvalidSettings so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidSettings }

// Range is a closed interval [Min, Max].
type Range struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// Check fails when Min is greater than Max.
func (r Range) Check() error {
	if r.Min > r.Max {
		return errors.New("min on range cannot be greater than max")
	}
	return nil
}

// Contains is inclusive at both bounds.
func (r Range) Contains(v int64) bool {
	return r.Min <= v && v <= r.Max
}

// Ranges keeps configuration order. It is neither sorted nor deduplicated.
type Ranges []Range

// Contains reports whether any range includes v.
func (rs Ranges) Contains(v int64) bool {
	for _, r := range rs {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// Default returns the Min of the first configured range. Configuration order wins over
// numeric order.
func (rs Ranges) Default() (int64, error) {
	if len(rs) == 0 {
		return 0, ErrNoRanges
	}
	return rs[0].Min, nil
}

// RuleVisitor has one method per Rule variant. A new variant adds a method here, so every
// dispatch site stops compiling until it handles it.
type RuleVisitor interface {
	VisitRunAsAny() error
	VisitMayRunAs(ranges Ranges) error
	VisitMustRunAs(ranges Ranges) error
}

// Rule is the enforcement mode for fsGroup. The only implementations are RunAsAny,
// MayRunAs and MustRunAs.
type Rule interface {
	fmt.Stringer
	Accept(v RuleVisitor) error
	ranges() Ranges
}

// RunAsAny places no constraint on fsGroup.
type RunAsAny struct{}

func (RunAsAny) String() string             { return RuleRunAsAny }
func (RunAsAny) Accept(v RuleVisitor) error { return v.VisitRunAsAny() }
func (RunAsAny) ranges() Ranges             { return nil }

// MayRunAs constrains fsGroup only when the workload sets it.
type MayRunAs struct {
	Ranges Ranges
}

func (MayRunAs) String() string               { return RuleMayRunAs }
func (r MayRunAs) Accept(v RuleVisitor) error { return v.VisitMayRunAs(r.Ranges) }
func (r MayRunAs) ranges() Ranges             { return r.Ranges }

// MustRunAs constrains fsGroup and defaults it when the workload leaves it unset.
type MustRunAs struct {
	Ranges Ranges
}

func (MustRunAs) String() string               { return RuleMustRunAs }
func (r MustRunAs) Accept(v RuleVisitor) error { return v.VisitMustRunAs(r.Ranges) }
func (r MustRunAs) ranges() Ranges             { return r.Ranges }

// Settings wraps the active rule. The zero value behaves as RunAsAny.
type Settings struct {
	Rule Rule
}

// Default returns the settings of an unconfigured policy.
func Default() Settings {
	return Settings{Rule: RunAsAny{}}
}

// Active returns the configured rule, falling back to RunAsAny.
func (s Settings) Active() Rule {
	if s.Rule == nil {
		return RunAsAny{}
	}
	return s.Rule
}

// Ranges returns the ranges of the active rule, nil for RunAsAny.
func (s Settings) Ranges() Ranges {
	return s.Active().ranges()
}

func (s Settings) String() string {
	rs := s.Ranges()
	if len(rs) == 0 {
		return s.Active().String()
	}
	return fmt.Sprintf("%s%v", s.Active(), []Range(rs))
}

// Validate checks the configuration once, at load time. It has no side effects.
func (s Settings) Validate() error {
	return s.Active().Accept(validator{name: s.Active().String()})
}

type validator struct {
	name string
}

func (validator) VisitRunAsAny() error { return nil }

func (v validator) VisitMayRunAs(ranges Ranges) error { return v.check(ranges) }

func (v validator) VisitMustRunAs(ranges Ranges) error { return v.check(ranges) }

func (v validator) check(ranges Ranges) error {
	if len(ranges) == 0 {
		return &ValidationError{Msg: fmt.Sprintf("%s must contain at least one range", v.name)}
	}
	for _, r := range ranges {
		if r.Check() != nil {
			return &ValidationError{Msg: "all ranges must be valid"}
		}
	}
	return nil
}
