// Package drive runs the control loop: read a bus message, apply it on the
// simulated vehicle, display the resulting state and advance the simulator.
package drive

import (
	"errors"
	"fmt"
	"math"

	"github.com/cyrilix/robocar-drivesim/pkg/can"
	"github.com/cyrilix/robocar-drivesim/pkg/controls"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrStopped = errors.New("driving loop stopped")

type State int

const (
	StateRunning State = iota
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Vehicle interface {
	controls.Controller
	Velocity() (r3.Vec, error)
	Destroy() error
}

type World interface {
	Tick() error
}

type Display interface {
	Render(speed float64, signals can.ActuationSignals) error
	CloseRequested() bool
	Close() error
}

// Speed is the euclidean norm of the velocity vector, sqrt(x²+y²+z²).
func Speed(velocity r3.Vec) float64 {
	return math.Sqrt(r3.Norm2(velocity))
}

func New(source can.Source, vehicle Vehicle, world World, display Display) *Loop {
	return &Loop{
		source:      source,
		interpreter: can.NewInterpreter(),
		bridge:      controls.New(),
		vehicle:     vehicle,
		world:       world,
		display:     display,
		state:       StateRunning,
		log:         zap.S().With("part", "drive"),
	}
}

/* Loop owns the vehicle and the display from New until it stops */
type Loop struct {
	source      can.Source
	interpreter *can.Interpreter
	bridge      *controls.Bridge

	vehicle Vehicle
	world   World
	display Display

	state      State
	iterations uint64

	log *zap.SugaredLogger
}

func (l *Loop) State() State {
	return l.state
}

func (l *Loop) Iterations() uint64 {
	return l.iterations
}

// LastSignals returns the signals applied on the last iteration.
func (l *Loop) LastSignals() can.ActuationSignals {
	return l.interpreter.Last()
}

// Run drives until a close is requested or an error occurs. The vehicle is
// destroyed and the display closed before Run returns, even on panic.
func (l *Loop) Run() (err error) {
	if l.state == StateStopped {
		return ErrStopped
	}
	l.log.Info("start driving loop")
	defer func() {
		err = multierr.Append(err, l.stop())
	}()

	for {
		if err := l.step(); err != nil {
			return err
		}
		if l.display.CloseRequested() {
			l.log.Infof("stop driving loop after %d iterations", l.iterations)
			return nil
		}
		if err := l.world.Tick(); err != nil {
			return fmt.Errorf("unable to advance simulation: %w", err)
		}
	}
}

func (l *Loop) step() error {
	raw, err := l.source.Next()
	if err != nil {
		return fmt.Errorf("unable to read message: %w", err)
	}
	signals := l.interpreter.Interpret(raw)

	if err := l.bridge.Apply(signals, l.vehicle); err != nil {
		return err
	}

	velocity, err := l.vehicle.Velocity()
	if err != nil {
		return fmt.Errorf("unable to read vehicle velocity: %w", err)
	}

	if err := l.display.Render(Speed(velocity), signals); err != nil {
		return fmt.Errorf("unable to render dashboard: %w", err)
	}
	l.iterations++
	return nil
}

func (l *Loop) stop() error {
	if l.state == StateStopped {
		return nil
	}
	l.state = StateStopped

	var err error
	if l.vehicle != nil {
		if e := l.vehicle.Destroy(); e != nil {
			err = multierr.Append(err, fmt.Errorf("unable to release vehicle: %w", e))
		}
		l.vehicle = nil
	}
	if l.display != nil {
		if e := l.display.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close display: %w", e))
		}
		l.display = nil
	}
	return err
}
