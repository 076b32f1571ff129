package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/cyrilix/robocar-drivesim/pkg/simulator"
	"go.uber.org/zap"
)

// SimulatorMock accepts a single gateway connection and records what it receives.
type SimulatorMock struct {
	ln net.Listener

	muConn       sync.Mutex
	conn         net.Conn
	writer       *bufio.Writer
	connected    chan struct{}
	disconnected chan struct{}

	notifyCtrlChan     chan *simulator.ControlMsg
	notifyCarChan      chan *simulator.CarConfigMsg
	notifyRacerChan    chan *simulator.RacerBioMsg
	notifyPositionChan chan *simulator.SetPositionMsg

	logger *zap.SugaredLogger
}

func (c *SimulatorMock) Start() error {
	c.logger = zap.S().With("simulator", "mock")
	c.connected = make(chan struct{})
	c.disconnected = make(chan struct{})
	c.notifyCtrlChan = make(chan *simulator.ControlMsg, 100)
	c.notifyCarChan = make(chan *simulator.CarConfigMsg, 10)
	c.notifyRacerChan = make(chan *simulator.RacerBioMsg, 10)
	c.notifyPositionChan = make(chan *simulator.SetPositionMsg, 10)

	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return fmt.Errorf("unable to listen on port: %v", err)
	}
	c.ln = ln

	go func() {
		conn, err := c.ln.Accept()
		if err != nil {
			c.logger.Debugf("connection close: %v", err)
			return
		}
		c.handleConnection(conn)
	}()
	return nil
}

func (c *SimulatorMock) Addr() string {
	return c.ln.Addr().String()
}

func (c *SimulatorMock) NotifyCtrl() <-chan *simulator.ControlMsg {
	return c.notifyCtrlChan
}
func (c *SimulatorMock) NotifyCar() <-chan *simulator.CarConfigMsg {
	return c.notifyCarChan
}
func (c *SimulatorMock) NotifyRacer() <-chan *simulator.RacerBioMsg {
	return c.notifyRacerChan
}
func (c *SimulatorMock) NotifyPosition() <-chan *simulator.SetPositionMsg {
	return c.notifyPositionChan
}

// Disconnected is closed when the gateway closes its connection.
func (c *SimulatorMock) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *SimulatorMock) EmitMsg(p string) error {
	<-c.connected
	c.muConn.Lock()
	defer c.muConn.Unlock()
	_, err := c.writer.WriteString(p + "\n")
	if err != nil {
		c.logger.Errorf("unable to write response: %v", err)
		return err
	}
	return c.writer.Flush()
}

func (c *SimulatorMock) EmitTelemetry(msg *simulator.TelemetryMsg) error {
	msg.MsgType = simulator.MsgTypeTelemetry
	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unable to marshal telemetry: %v", err)
	}
	return c.EmitMsg(string(content))
}

func (c *SimulatorMock) handleConnection(conn net.Conn) {
	c.muConn.Lock()
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.muConn.Unlock()
	close(c.connected)
	defer close(c.disconnected)

	reader := bufio.NewReader(conn)
	for {
		rawMsg, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				c.logger.Debug("connection closed")
				return
			}
			c.logger.Errorf("unable to read request: %v", err)
			return
		}
		var msg simulator.Msg
		err = json.Unmarshal(rawMsg, &msg)
		if err != nil {
			c.logger.Errorf("unable to unmarshal msg \"%v\": %v", string(rawMsg), err)
			continue
		}
		switch msg.MsgType {
		case simulator.MsgTypeControl:
			var msgControl simulator.ControlMsg
			if err = json.Unmarshal(rawMsg, &msgControl); err != nil {
				c.logger.Errorf("unable to unmarshal control msg \"%v\": %v", string(rawMsg), err)
				continue
			}
			c.notifyCtrlChan <- &msgControl
		case simulator.MsgTypeCarConfig:
			var msgCar simulator.CarConfigMsg
			if err = json.Unmarshal(rawMsg, &msgCar); err != nil {
				c.logger.Errorf("unable to unmarshal car msg \"%v\": %v", string(rawMsg), err)
				continue
			}
			c.notifyCarChan <- &msgCar
			resp, err := json.Marshal(&simulator.Msg{MsgType: simulator.MsgTypeCarLoaded})
			if err != nil {
				c.logger.Errorf("unable to generate car loaded response: %v", err)
				continue
			}
			if err = c.EmitMsg(string(resp)); err != nil {
				c.logger.Errorf("unable to write car loaded response: %v", err)
			}
		case simulator.MsgTypeRacerInfo:
			var msgRacer simulator.RacerBioMsg
			if err = json.Unmarshal(rawMsg, &msgRacer); err != nil {
				c.logger.Errorf("unable to unmarshal racer msg \"%v\": %v", string(rawMsg), err)
				continue
			}
			c.notifyRacerChan <- &msgRacer
		case simulator.MsgTypeSetPosition:
			var msgPos simulator.SetPositionMsg
			if err = json.Unmarshal(rawMsg, &msgPos); err != nil {
				c.logger.Errorf("unable to unmarshal position msg \"%v\": %v", string(rawMsg), err)
				continue
			}
			c.notifyPositionChan <- &msgPos
		}
	}
}

func (c *SimulatorMock) Close() error {
	c.logger.Debugf("close mock server")
	err := c.ln.Close()
	if err != nil {
		return fmt.Errorf("unable to close mock server: %v", err)
	}
	c.muConn.Lock()
	defer c.muConn.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	return nil
}
