package can

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
)

func TestInterpret(t *testing.T) {
	cases := []struct {
		name     string
		raw      RawMessage
		expected ActuationSignals
	}{
		{"Empty message",
			RawMessage{},
			ActuationSignals{Throttle: 0., Steering: 0., Brake: 0.}},
		{"Throttle only",
			RawMessage{Throttle: Some(0.7)},
			ActuationSignals{Throttle: 0.7, Steering: 0., Brake: 0.}},
		{"Steering and brake",
			RawMessage{Steering: Some(-0.4), Brake: Some(0.2)},
			ActuationSignals{Throttle: 0., Steering: -0.4, Brake: 0.2}},
		{"All fields",
			RawMessage{Throttle: Some(0.1), Steering: Some(0.2), Brake: Some(0.3)},
			ActuationSignals{Throttle: 0.1, Steering: 0.2, Brake: 0.3}},
		{"Out of range values are not clamped",
			RawMessage{Throttle: Some(1.5), Steering: Some(-2.), Brake: Some(-0.3)},
			ActuationSignals{Throttle: 1.5, Steering: -2., Brake: -0.3}},
		{"Explicit zero",
			RawMessage{Throttle: Some(0.)},
			ActuationSignals{}},
	}

	for _, c := range cases {
		result := Interpret(c.raw)
		if result != c.expected {
			t.Errorf("[%v] bad signals: %#v, wants %#v", c.name, result, c.expected)
		}
	}
}

func TestInterpreter_Idempotent(t *testing.T) {
	raw := RawMessage{Throttle: Some(0.7), Brake: Some(0.1)}
	i := NewInterpreter()

	first := i.Interpret(raw)
	second := i.Interpret(raw)
	if first != second {
		t.Errorf("interpret is not idempotent: %#v != %#v", first, second)
	}
	if i.Last() != first {
		t.Errorf("bad last signals: %#v, wants %#v", i.Last(), first)
	}
	if v, ok := raw.Steering.Get(); ok {
		t.Errorf("raw message mutated, steering is now %v", v)
	}

	other := i.Interpret(RawMessage{})
	if i.Last() != other {
		t.Errorf("last signals not updated: %#v, wants %#v", i.Last(), other)
	}
}

func TestRawMessage_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		expected ActuationSignals
		present  [3]bool
	}{
		{"Throttle only", `{"throttle": 0.7}`,
			ActuationSignals{Throttle: 0.7}, [3]bool{true, false, false}},
		{"Unknown fields are ignored", `{"steering": -0.5, "gear": 3, "rpm": 1200}`,
			ActuationSignals{Steering: -0.5}, [3]bool{false, true, false}},
		{"All fields", `{"throttle": 0.2, "steering": 0.3, "brake": 0.4}`,
			ActuationSignals{Throttle: 0.2, Steering: 0.3, Brake: 0.4}, [3]bool{true, true, true}},
	}

	for _, c := range cases {
		var raw RawMessage
		if err := json.Unmarshal([]byte(c.content), &raw); err != nil {
			t.Fatalf("[%v] unable to unmarshal: %v", c.name, err)
		}
		for idx, v := range []Value{raw.Throttle, raw.Steering, raw.Brake} {
			if _, ok := v.Get(); ok != c.present[idx] {
				t.Errorf("[%v] field %d presence is %v, wants %v", c.name, idx, ok, c.present[idx])
			}
		}
		if s := Interpret(raw); s != c.expected {
			t.Errorf("[%v] bad signals: %#v, wants %#v", c.name, s, c.expected)
		}
	}
}

func TestRawMessage_UnmarshalJSONInvalid(t *testing.T) {
	var raw RawMessage
	if err := json.Unmarshal([]byte(`{"throttle": "full"}`), &raw); err == nil {
		t.Errorf("string throttle should be rejected, got %#v", raw)
	}
}

func TestRandomSource(t *testing.T) {
	src := NewRandomSource(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		raw, err := src.Next()
		if err != nil {
			t.Fatalf("unable to read message: %v", err)
		}
		s := Interpret(raw)
		if s.Throttle < 0. || s.Throttle > 1. {
			t.Errorf("throttle out of range: %v", s.Throttle)
		}
		if s.Steering < -1. || s.Steering > 1. {
			t.Errorf("steering out of range: %v", s.Steering)
		}
		if s.Brake < 0. || s.Brake > 1. {
			t.Errorf("brake out of range: %v", s.Brake)
		}
	}
}

func TestRampSource(t *testing.T) {
	src := NewRampSource(5)
	expected := []float64{0., 0.25, 0.5, 0.75, 1., 1.}
	for idx, e := range expected {
		raw, err := src.Next()
		if err != nil {
			t.Fatalf("unable to read message: %v", err)
		}
		throttle, ok := raw.Throttle.Get()
		if !ok {
			t.Fatalf("[%d] throttle is absent", idx)
		}
		if throttle != e {
			t.Errorf("[%d] bad throttle: %v, wants %v", idx, throttle, e)
		}
		if _, ok := raw.Steering.Get(); ok {
			t.Errorf("[%d] steering should be absent", idx)
		}
	}
}
