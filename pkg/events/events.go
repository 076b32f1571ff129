package events

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cyrilix/robocar-drivesim/pkg/dashboard"
	"github.com/cyrilix/robocar-protobuf/go/events"
	"github.com/disintegration/imaging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const frameRefName = "dashboard"

func NewMsgPublisher(p Publisher, topicFrame, topicSteering, topicThrottle string) *MsgPublisher {
	return &MsgPublisher{
		p:             p,
		topicFrame:    topicFrame,
		topicSteering: topicSteering,
		topicThrottle: topicThrottle,
		log:           zap.S().With("part", "events"),
	}
}

// MsgPublisher is a dashboard sink publishing each frame as robocar events.
// An empty topic disables the matching event.
type MsgPublisher struct {
	p             Publisher
	topicFrame    string
	topicSteering string
	topicThrottle string

	log *zap.SugaredLogger
}

// Present never fails, publication errors are only logged so that a broker
// outage doesn't stop the vehicle.
func (m *MsgPublisher) Present(frame *dashboard.Frame) error {
	if m.topicThrottle != "" {
		m.publishThrottle(frame)
	}
	if m.topicSteering != "" {
		m.publishSteering(frame)
	}
	if m.topicFrame != "" {
		m.publishFrame(frame)
	}
	return nil
}

func (m *MsgPublisher) Close() error {
	return nil
}

// publishThrottle follows the robocar convention, a brake is a negative throttle.
func (m *MsgPublisher) publishThrottle(frame *dashboard.Frame) {
	throttle := frame.Signals.Throttle
	if frame.Signals.Brake > 0 {
		throttle = -1 * frame.Signals.Brake
	}
	m.publish(m.topicThrottle, &events.ThrottleMessage{
		Throttle:   float32(throttle),
		Confidence: 1.0,
	})
}

func (m *MsgPublisher) publishSteering(frame *dashboard.Frame) {
	m.publish(m.topicSteering, &events.SteeringMessage{
		Steering:   float32(frame.Signals.Steering),
		Confidence: 1.0,
	})
}

func (m *MsgPublisher) publishFrame(frame *dashboard.Frame) {
	var img bytes.Buffer
	if err := imaging.Encode(&img, frame.Image, imaging.JPEG); err != nil {
		m.log.Errorf("unable to encode frame %d: %v", frame.Seq, err)
		return
	}

	now := time.Now()
	m.log.Debugf("new frame %v", frame.Seq)
	m.publish(m.topicFrame, &events.FrameMessage{
		Id: &events.FrameRef{
			Name:      frameRefName,
			Id:        fmt.Sprintf("%d", frame.Seq),
			CreatedAt: timestamppb.New(now),
		},
		Frame: img.Bytes(),
	})
}

func (m *MsgPublisher) publish(topic string, msg proto.Message) {
	payload, err := proto.Marshal(msg)
	if err != nil {
		m.log.Errorf("unable to marshal protobuf message: %v", err)
		return
	}
	if err = m.p.Publish(topic, payload); err != nil {
		m.log.Errorf("unable to publish events message: %v", err)
	}
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

func NewMqttPublisher(client mqtt.Client, qos byte, retain bool) *MqttPublisher {
	return &MqttPublisher{client: client, qos: qos, retain: retain}
}

type MqttPublisher struct {
	client mqtt.Client
	qos    byte
	retain bool
}

func (m *MqttPublisher) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, m.retain, payload)
	token.WaitTimeout(10 * time.Millisecond)
	if err := token.Error(); err != nil {
		return fmt.Errorf("unable to publish to topic %v: %w", topic, err)
	}
	return nil
}
