package gateway

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/cyrilix/robocar-drivesim/pkg/simulator"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrVehicleDestroyed = errors.New("vehicle destroyed")
	ErrAlreadySpawned   = errors.New("a vehicle is already spawned on this connection")
)

type Option func(w *World)

// WithConnectAttempts sets how many times the simulator dial is tried, 1 means no retry.
func WithConnectAttempts(attempts uint) Option {
	return func(w *World) {
		if attempts > 0 {
			w.connectAttempts = attempts
		}
	}
}

func WithConnectDelay(delay time.Duration) Option {
	return func(w *World) {
		w.connectDelay = delay
	}
}

/* World is the simulator connection, it owns at most one vehicle */
type World struct {
	address         string
	connectAttempts uint
	connectDelay    time.Duration

	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	closed bool

	lastTelemetry *simulator.TelemetryMsg
	vehicle       *Vehicle

	log *zap.SugaredLogger
}

func Connect(address string, opts ...Option) (*World, error) {
	w := &World{
		address:         address,
		connectAttempts: 1,
		connectDelay:    1 * time.Second,
		log:             zap.S().With("simulator", address),
	}
	for _, o := range opts {
		o(w)
	}

	err := retry.Do(func() error {
		w.log.Info("connect to simulator")
		conn, err := connect(w.address)
		if err != nil {
			return fmt.Errorf("unable to connect to simulator at %v: %w", w.address, err)
		}
		w.conn = conn
		w.log.Info("connection success")
		return nil
	},
		retry.Attempts(w.connectAttempts),
		retry.Delay(w.connectDelay),
	)
	if err != nil {
		return nil, err
	}

	w.reader = bufio.NewReader(w.conn)
	w.writer = bufio.NewWriter(w.conn)
	return w, nil
}

// Blueprint describes the car to spawn.
type Blueprint struct {
	Car        simulator.CarConfigMsg
	Racer      *simulator.RacerBioMsg
	SpawnPoint *simulator.SetPositionMsg
}

// SpawnVehicle configures the car and blocks until the simulator reports it loaded.
func (w *World) SpawnVehicle(bp Blueprint) (*Vehicle, error) {
	if w.closed {
		return nil, fmt.Errorf("unable to spawn vehicle: %w", io.ErrClosedPipe)
	}
	if w.vehicle != nil {
		return nil, ErrAlreadySpawned
	}

	car := bp.Car
	car.MsgType = simulator.MsgTypeCarConfig
	w.log.Infof("spawn vehicle %v (%v)", car.CarName, car.BodyStyle)
	if err := w.writeMsg(&car); err != nil {
		return nil, fmt.Errorf("unable to send car config: %w", err)
	}
	if bp.Racer != nil {
		racer := *bp.Racer
		racer.MsgType = simulator.MsgTypeRacerInfo
		if err := w.writeMsg(&racer); err != nil {
			return nil, fmt.Errorf("unable to send racer info: %w", err)
		}
	}

	if err := w.waitCarLoaded(); err != nil {
		return nil, err
	}

	if bp.SpawnPoint != nil {
		pos := *bp.SpawnPoint
		pos.MsgType = simulator.MsgTypeSetPosition
		if err := w.writeMsg(&pos); err != nil {
			return nil, fmt.Errorf("unable to move vehicle to spawn point: %w", err)
		}
	}

	w.vehicle = &Vehicle{
		world: w,
		log:   w.log.With("car", car.CarName),
	}
	return w.vehicle, nil
}

func (w *World) waitCarLoaded() error {
	for {
		msgType, rawLine, err := w.readMsg()
		if err != nil {
			return fmt.Errorf("unable to wait car loaded: %w", err)
		}
		switch msgType {
		case simulator.MsgTypeCarLoaded:
			w.log.Info("car loaded")
			return nil
		case simulator.MsgTypeTelemetry:
			w.storeTelemetry(rawLine)
		}
	}
}

// Tick blocks until the simulator emits its next telemetry message.
func (w *World) Tick() error {
	if w.closed {
		return fmt.Errorf("unable to tick: %w", io.ErrClosedPipe)
	}
	for {
		msgType, rawLine, err := w.readMsg()
		if err != nil {
			return fmt.Errorf("unable to tick simulator: %w", err)
		}
		if msgType != simulator.MsgTypeTelemetry {
			w.log.Debugf("ignore '%v' msg", msgType)
			continue
		}
		if w.storeTelemetry(rawLine) {
			return nil
		}
	}
}

func (w *World) storeTelemetry(rawLine []byte) bool {
	var msg simulator.TelemetryMsg
	if err := json.Unmarshal(rawLine, &msg); err != nil {
		w.log.Errorf("unable to unmarshal telemetry msg '%v': %v", string(rawLine), err)
		return false
	}
	w.lastTelemetry = &msg
	return true
}

// LastTelemetry returns the last telemetry received or nil.
func (w *World) LastTelemetry() *simulator.TelemetryMsg {
	return w.lastTelemetry
}

func (w *World) readMsg() (simulator.MsgType, []byte, error) {
	for {
		rawLine, err := w.reader.ReadBytes('\n')
		if err == io.EOF {
			w.log.Info("Connection closed")
			return "", nil, err
		}
		if err != nil {
			return "", nil, fmt.Errorf("unable to read response: %w", err)
		}

		var msg simulator.Msg
		err = json.Unmarshal(rawLine, &msg)
		if err != nil {
			w.log.Errorf("unable to unmarshal simulator msg '%v': %v", string(rawLine), err)
			continue
		}
		return msg.MsgType, rawLine, nil
	}
}

func (w *World) writeMsg(msg interface{}) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unable to marshall msg \"%#v\": %w", msg, err)
	}
	_, err = w.writer.Write(append(content, '\n'))
	if err != nil {
		return fmt.Errorf("unable to write msg \"%#v\" to simulator: %w", msg, err)
	}
	if err = w.writer.Flush(); err != nil {
		return fmt.Errorf("unable to flush msg \"%#v\" to simulator: %w", msg, err)
	}
	return nil
}

// Close releases the vehicle if still held and the connection.
func (w *World) Close() error {
	if w.vehicle != nil && !w.vehicle.destroyed {
		return w.vehicle.Destroy()
	}
	return w.close()
}

func (w *World) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn == nil {
		w.log.Warn("no connection to close")
		return nil
	}
	w.log.Info("close simulator connection")
	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("unable to close connection to simulator: %w", err)
	}
	return nil
}

/* Vehicle is the car spawned on a World connection */
type Vehicle struct {
	world     *World
	destroyed bool
	log       *zap.SugaredLogger
}

func (v *Vehicle) ApplyControl(throttle, steer, brake float64) error {
	if v.destroyed {
		return ErrVehicleDestroyed
	}
	return v.world.writeMsg(&simulator.ControlMsg{
		MsgType:  simulator.MsgTypeControl,
		Steering: formatFloat(steer),
		Throttle: formatFloat(throttle),
		Brake:    formatFloat(brake),
	})
}

// Velocity returns the velocity of the last telemetry, zero before the first one.
func (v *Vehicle) Velocity() (r3.Vec, error) {
	if v.destroyed {
		return r3.Vec{}, ErrVehicleDestroyed
	}
	t := v.world.lastTelemetry
	if t == nil {
		return r3.Vec{}, nil
	}
	return r3.Vec{X: t.VelX, Y: t.VelY, Z: t.VelZ}, nil
}

// Destroy stops the car and removes it from the simulator by closing its
// connection. Calling it again is a no-op.
func (v *Vehicle) Destroy() error {
	if v.destroyed {
		return nil
	}
	v.destroyed = true
	v.log.Info("destroy vehicle")

	var err error
	if !v.world.closed {
		err = v.world.writeMsg(&simulator.ControlMsg{
			MsgType:  simulator.MsgTypeControl,
			Steering: formatFloat(0.),
			Throttle: formatFloat(0.),
			Brake:    formatFloat(0.),
		})
	}
	return multierr.Append(err, v.world.close())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var connect = func(address string) (io.ReadWriteCloser, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %v: %w", address, err)
	}
	return conn, nil
}
