// Package can turns actuation-intent messages read from the vehicle bus into
// the throttle/steering/brake triple applied to the simulated car.
package can

import (
	"encoding/json"
	"fmt"
)

// Value is a field that may be absent from a RawMessage.
type Value struct {
	v  float64
	ok bool
}

func Some(v float64) Value {
	return Value{v: v, ok: true}
}

func (v Value) Get() (float64, bool) {
	return v.v, v.ok
}

// OrZero returns the value when present, 0.0 otherwise.
func (v Value) OrZero() float64 {
	if !v.ok {
		return 0.
	}
	return v.v
}

func (v Value) String() string {
	if !v.ok {
		return "<absent>"
	}
	return fmt.Sprintf("%v", v.v)
}

// RawMessage is one decoded bus frame carrying actuation intents.
type RawMessage struct {
	Throttle Value
	Steering Value
	Brake    Value
}

type rawMessageJson struct {
	Throttle *float64 `json:"throttle"`
	Steering *float64 `json:"steering"`
	Brake    *float64 `json:"brake"`
}

// UnmarshalJSON decodes a json object, unknown keys are ignored and missing
// keys stay absent.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	var raw rawMessageJson
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unable to unmarshal raw message '%v': %w", string(data), err)
	}
	*m = RawMessage{
		Throttle: fromPtr(raw.Throttle),
		Steering: fromPtr(raw.Steering),
		Brake:    fromPtr(raw.Brake),
	}
	return nil
}

func fromPtr(v *float64) Value {
	if v == nil {
		return Value{}
	}
	return Some(*v)
}

// ActuationSignals always carries the three fields. Ranges are documented
// (throttle and brake in [0,1], steering in [-1,1]) but never enforced.
type ActuationSignals struct {
	Throttle float64 `json:"throttle"`
	Steering float64 `json:"steering"`
	Brake    float64 `json:"brake"`
}

// Interpret maps a raw message to actuation signals, absent fields become 0.0.
func Interpret(raw RawMessage) ActuationSignals {
	return ActuationSignals{
		Throttle: raw.Throttle.OrZero(),
		Steering: raw.Steering.OrZero(),
		Brake:    raw.Brake.OrZero(),
	}
}

// Interpreter keeps the last interpreted signals for inspection.
type Interpreter struct {
	last ActuationSignals
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Interpret(raw RawMessage) ActuationSignals {
	i.last = Interpret(raw)
	return i.last
}

func (i *Interpreter) Last() ActuationSignals {
	return i.last
}
