// Package alarm implements stopping conditions: named
// thresholds evaluated against the Monitor's most recently sampled
// observable values, checked once per simulation step so a long trajectory
// can halt itself the moment a watched quantity crosses a limit rather than
// running to a fixed time or event budget.
package alarm

import (
	"github.com/sitesim/reactor/internal/domain/monitor"
	"github.com/sitesim/reactor/pkg/errors"
)

// Condition is one registered stopping condition: trip when the named
// observable's value at Index in its series strictly exceeds Threshold.
// Index selects which point of a multi-valued series (a size-distribution
// bin, say) to compare; scalar observables always use Index 0.
type Condition struct {
	Name      string
	Observ    string
	Index     int
	Threshold float64
}

// Alarm holds every registered Condition and checks them against a Monitor.
type Alarm struct {
	conditions []Condition
}

// New returns an empty Alarm.
func New() *Alarm { return &Alarm{} }

// Register adds a stopping condition. It returns a config error if Observ
// does not name a series already registered on mon.
func (a *Alarm) Register(mon *monitor.Monitor, cond Condition) error {
	if _, ok := mon.Series(cond.Observ); !ok {
		return errors.ConfigError(errors.CodeInvalidObservable, "alarm "+cond.Name+": unknown observable "+cond.Observ)
	}
	a.conditions = append(a.conditions, cond)
	return nil
}

// Conditions returns every registered condition, in registration order.
func (a *Alarm) Conditions() []Condition { return a.conditions }

// Trigger checks every registered condition against mon's latest sample and
// reports whether any condition's threshold was exceeded, along with the
// name of the first one that tripped (conditions are checked in registration
// order; the caller stops the run on the first hit, same as the rest
// checking becomes moot once one condition fires).
func (a *Alarm) Trigger(mon *monitor.Monitor) (bool, string) {
	for _, cond := range a.conditions {
		series, ok := mon.Series(cond.Observ)
		if !ok {
			continue
		}
		value, ok := latestAt(series, cond.Index)
		if !ok {
			continue
		}
		if value > cond.Threshold {
			return true, cond.Name
		}
	}
	return false, ""
}

// latestAt returns the most recent sampled value at the given series index
// (0 for every scalar observable; a bin index for a size-distribution
// series), or false if no sample has been taken yet.
func latestAt(series *monitor.Series, index int) (float64, bool) {
	if len(series.Bins) > 0 {
		last := series.Bins[len(series.Bins)-1]
		if index < 0 || index >= len(last) {
			return 0, false
		}
		return last[index], true
	}
	if len(series.Points) == 0 {
		return 0, false
	}
	return series.Points[len(series.Points)-1], true
}
