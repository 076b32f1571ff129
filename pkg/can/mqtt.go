package can

import (
	"fmt"
	"sync"

	"github.com/cyrilix/robocar-protobuf/go/events"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"go.uber.org/zap"
)

// MqttSource feeds the loop with the last throttle and steering commands
// published by other robocar parts. Fields stay absent until a first command
// is received.
type MqttSource struct {
	client        mqtt.Client
	topicThrottle string
	topicSteering string

	muLast sync.Mutex
	last   RawMessage
}

func NewMqttSource(client mqtt.Client, topicThrottle, topicSteering string) *MqttSource {
	return &MqttSource{
		client:        client,
		topicThrottle: topicThrottle,
		topicSteering: topicSteering,
	}
}

func (s *MqttSource) Start(qos byte) error {
	if s.topicThrottle != "" {
		zap.S().Infof("configure mqtt route on throttle command %v", s.topicThrottle)
		token := s.client.Subscribe(s.topicThrottle, qos, s.OnThrottle)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("unable to subscribe to topic '%v': %w", s.topicThrottle, token.Error())
		}
	}
	if s.topicSteering != "" {
		zap.S().Infof("configure mqtt route on steering command %v", s.topicSteering)
		token := s.client.Subscribe(s.topicSteering, qos, s.OnSteering)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("unable to subscribe to topic '%v': %w", s.topicSteering, token.Error())
		}
	}
	return nil
}

func (s *MqttSource) Stop() {
	topics := make([]string, 0, 2)
	for _, t := range []string{s.topicThrottle, s.topicSteering} {
		if t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return
	}
	token := s.client.Unsubscribe(topics...)
	if token.Wait() && token.Error() != nil {
		zap.S().Warnf("unable to unsubscribe from %v: %v", topics, token.Error())
	}
}

// OnThrottle records a throttle command, negative throttle is a brake request.
func (s *MqttSource) OnThrottle(_ mqtt.Client, message mqtt.Message) {
	var msg events.ThrottleMessage
	err := proto.Unmarshal(message.Payload(), &msg)
	if err != nil {
		zap.S().Errorf("unable to unmarshal throttle msg: %v", err)
		return
	}

	s.muLast.Lock()
	defer s.muLast.Unlock()
	if msg.Throttle > 0 {
		s.last.Throttle = Some(float64(msg.Throttle))
		s.last.Brake = Some(0.)
	} else if msg.Throttle < 0 {
		s.last.Throttle = Some(0.)
		s.last.Brake = Some(-1 * float64(msg.Throttle))
	} else {
		s.last.Throttle = Some(0.)
		s.last.Brake = Some(0.)
	}
}

func (s *MqttSource) OnSteering(_ mqtt.Client, message mqtt.Message) {
	var msg events.SteeringMessage
	err := proto.Unmarshal(message.Payload(), &msg)
	if err != nil {
		zap.S().Errorf("unable to unmarshal steering msg: %v", err)
		return
	}

	s.muLast.Lock()
	defer s.muLast.Unlock()
	s.last.Steering = Some(float64(msg.Steering))
}

func (s *MqttSource) Next() (RawMessage, error) {
	s.muLast.Lock()
	defer s.muLast.Unlock()
	return s.last, nil
}
