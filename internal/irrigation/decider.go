package irrigation

import "fmt"

// Thresholds is the hysteresis band used in auto mode. The pump is switched
// on strictly below Low and off strictly above High; between the two nothing
// changes.
type Thresholds struct {
	Low  float64
	High float64
}

// DefaultThresholds is the 30/60 band.
var DefaultThresholds = Thresholds{Low: 30, High: 60}

// Validate checks 0 <= Low < High <= 100.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 100 || t.Low >= t.High {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= low < high <= 100 (got %g/%g)",
			ErrValidation, t.Low, t.High)
	}
	return nil
}

// Decide returns the action auto control takes for a new reading, given the
// status the reading was projected into. The rules are evaluated in order:
//
//  1. auto mode off: no action
//  2. moisture below Low with the pump off: ON
//  3. moisture above High with the pump on: OFF
//  4. anything else: no action
//
// Decide is pure.
func (t Thresholds) Decide(moisture float64, status CurrentStatus) (Action, bool) {
	switch {
	case !status.AutoMode:
		return "", false
	case moisture < t.Low && !status.PumpStatus:
		return ActionOn, true
	case moisture > t.High && status.PumpStatus:
		return ActionOff, true
	default:
		return "", false
	}
}

// Decide applies DefaultThresholds.
func Decide(moisture float64, status CurrentStatus) (Action, bool) {
	return DefaultThresholds.Decide(moisture, status)
}
