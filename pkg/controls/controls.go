package controls

import (
	"fmt"

	"github.com/cyrilix/robocar-drivesim/pkg/can"
	"go.uber.org/zap"
)

// Controller is the vehicle side of the bridge, typically *gateway.Vehicle.
type Controller interface {
	ApplyControl(throttle, steer, brake float64) error
}

func New() *Bridge {
	return &Bridge{log: zap.S().With("part", "controls")}
}

/* Bridge forwards interpreted signals to the simulated vehicle */
type Bridge struct {
	log *zap.SugaredLogger
}

// Apply issues exactly one control command with the signals as is, without
// clamping. Any rejection from the vehicle is returned to the caller.
func (b *Bridge) Apply(signals can.ActuationSignals, vehicle Controller) error {
	b.log.Debugf("apply control throttle=%v steering=%v brake=%v", signals.Throttle, signals.Steering, signals.Brake)
	if err := vehicle.ApplyControl(signals.Throttle, signals.Steering, signals.Brake); err != nil {
		return fmt.Errorf("unable to apply control %#v: %w", signals, err)
	}
	return nil
}
