package movement

import "errors"

// Recorders fans one event out to several sinks. Every sink sees the event
// even when an earlier one fails.
type Recorders []Recorder

func (rs Recorders) RecordOutcome(ev Event) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.RecordOutcome(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
