// Package policy decides whether a Pod's fsGroup satisfies the configured rule.
package policy

import (
	"errors"
	"fmt"

	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

// ErrInvalidPodSpec is returned for a workload without a spec section. It is an internal
// error, not a rejection.
var ErrInvalidPodSpec = errors.New("invalid pod spec")

// Decide evaluates one workload against validated settings. It is pure and safe to call
// concurrently with shared settings.
func Decide(w *Workload, s settings.Settings) (Outcome, error) {
	if w == nil || !w.HasSpec() {
		return nil, ErrInvalidPodSpec
	}

	d := &decision{workload: w}
	if err := s.Active().Accept(d); err != nil {
		return nil, err
	}
	return d.outcome, nil
}

// RejectMessage is the stable rejection text for a value outside every range.
func RejectMessage(fsGroup int64) string {
	return fmt.Sprintf("fsGroup %d is not included in any range", fsGroup)
}

type decision struct {
	workload *Workload
	outcome  Outcome
}

func (d *decision) VisitRunAsAny() error {
	d.outcome = Accept{}
	return nil
}

func (d *decision) VisitMayRunAs(ranges settings.Ranges) error {
	fsGroup, ok := d.workload.FSGroup()
	if !ok {
		d.outcome = Accept{}
		return nil
	}
	d.outcome = check(fsGroup, ranges)
	return nil
}

func (d *decision) VisitMustRunAs(ranges settings.Ranges) error {
	if fsGroup, ok := d.workload.FSGroup(); ok {
		d.outcome = check(fsGroup, ranges)
		return nil
	}

	// Validation guarantees a first range; reaching here without one is a bug upstream.
	def, err := ranges.Default()
	if err != nil {
		return fmt.Errorf("cannot default fsGroup for %s: %w", settings.RuleMustRunAs, err)
	}
	mutated, err := d.workload.WithFSGroup(def)
	if err != nil {
		return err
	}
	d.outcome = Mutate{Workload: mutated}
	return nil
}

func check(fsGroup int64, ranges settings.Ranges) Outcome {
	if ranges.Contains(fsGroup) {
		return Accept{}
	}
	return Reject{Message: RejectMessage(fsGroup)}
}
