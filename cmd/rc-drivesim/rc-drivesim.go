package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/cyrilix/robocar-base/cli"
	"github.com/cyrilix/robocar-drivesim/pkg/can"
	"github.com/cyrilix/robocar-drivesim/pkg/dashboard"
	"github.com/cyrilix/robocar-drivesim/pkg/drive"
	"github.com/cyrilix/robocar-drivesim/pkg/events"
	"github.com/cyrilix/robocar-drivesim/pkg/gateway"
	"github.com/cyrilix/robocar-drivesim/pkg/simulator"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const DefaultClientId = "robocar-drivesim"

const (
	sourceRandom = "random"
	sourceRamp   = "ramp"
	sourceMqtt   = "mqtt"
)

type settings struct {
	mqttBroker, username, password, clientId string
	mqttQos                                  int
	mqttRetain                               bool

	topicFrame, topicSteering, topicThrottle string
	topicCtrlSteering, topicCtrlThrottle     string

	address         string
	connectAttempts uint

	source    string
	rampSteps int

	carName, carStyle, carColor string
	carFontSize                 int
	spawnPoint                  string
	racerName                   string

	dashboardText bool
	snapshotPath  string
	snapshotEvery int
}

func main() {
	var cfg settings
	var debug bool

	cfg.mqttQos = cli.InitIntFlag("MQTT_QOS", 0)
	_, cfg.mqttRetain = os.LookupEnv("MQTT_RETAIN")

	cli.InitMqttFlags(DefaultClientId, &cfg.mqttBroker, &cfg.username, &cfg.password, &cfg.clientId, &cfg.mqttQos, &cfg.mqttRetain)

	flag.StringVar(&cfg.topicFrame, "events-topic-dashboard", os.Getenv("MQTT_TOPIC_DASHBOARD"), "Mqtt topic to publish dashboard frames, use MQTT_TOPIC_DASHBOARD if args not set")
	flag.StringVar(&cfg.topicSteering, "events-topic-steering", os.Getenv("MQTT_TOPIC_STEERING"), "Mqtt topic to publish applied steering, use MQTT_TOPIC_STEERING if args not set")
	flag.StringVar(&cfg.topicThrottle, "events-topic-throttle", os.Getenv("MQTT_TOPIC_THROTTLE"), "Mqtt topic to publish applied throttle, use MQTT_TOPIC_THROTTLE if args not set")
	flag.StringVar(&cfg.topicCtrlSteering, "topic-steering-ctrl", os.Getenv("MQTT_TOPIC_STEERING_CTRL"), "Mqtt topic to read steering instructions with mqtt source, use MQTT_TOPIC_STEERING_CTRL if args not set")
	flag.StringVar(&cfg.topicCtrlThrottle, "topic-throttle-ctrl", os.Getenv("MQTT_TOPIC_THROTTLE_CTRL"), "Mqtt topic to read throttle instructions with mqtt source, use MQTT_TOPIC_THROTTLE_CTRL if args not set")
	flag.StringVar(&cfg.address, "simulator-address", "127.0.0.1:9091", "Simulator address")
	flag.UintVar(&cfg.connectAttempts, "simulator-connect-attempts", 1, "Number of connection attempts to simulator")
	flag.BoolVar(&debug, "debug", false, "Debug logs")

	flag.StringVar(&cfg.source, "source", sourceRandom, fmt.Sprintf("Bus messages source, only %s", strings.Join([]string{sourceRandom, sourceRamp, sourceMqtt}, ",")))
	flag.IntVar(&cfg.rampSteps, "ramp-steps", 100, "Number of messages to reach full throttle with ramp source")

	carStyles := []string{
		string(simulator.CarConfigBodyStyleDonkey),
		string(simulator.CarConfigBodyStyleBare),
		string(simulator.CarConfigBodyStyleCar01),
	}
	flag.StringVar(&cfg.carName, "car-name", "model3", "Car name to display")
	flag.StringVar(&cfg.carStyle, "car-style", string(simulator.CarConfigBodyStyleCar01), fmt.Sprintf("Car style, only %s", strings.Join(carStyles, ",")))
	flag.StringVar(&cfg.carColor, "car-color", "0,0,0", "Color car as rgb value")
	flag.IntVar(&cfg.carFontSize, "car-font-size", 0, "Car font size")
	flag.StringVar(&cfg.spawnPoint, "spawn-point", "", "Spawn position as x,y,z, simulator default if not set")
	flag.StringVar(&cfg.racerName, "racer-name", "", "")

	flag.BoolVar(&cfg.dashboardText, "dashboard-text", true, "Print dashboard on stdout, forced when no other dashboard output is set")
	flag.StringVar(&cfg.snapshotPath, "dashboard-snapshot", "", "Save dashboard image to this file (png or jpg)")
	flag.IntVar(&cfg.snapshotEvery, "dashboard-snapshot-every", 10, "Save one dashboard frame out of n")

	flag.Parse()

	config := zap.NewDevelopmentConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	lgr, err := config.Build()
	if err != nil {
		log.Fatalf("unable to init logger: %v", err)
	}
	defer func() {
		if err := lgr.Sync(); err != nil {
			log.Printf("unable to Sync logger: %v\n", err)
		}
	}()
	zap.ReplaceGlobals(lgr)

	if err := run(&cfg); err != nil {
		zap.S().Errorf("%v", err)
		if err := lgr.Sync(); err != nil {
			log.Printf("unable to Sync logger: %v\n", err)
		}
		os.Exit(1)
	}
}

// run returns once the dashboard is closed, vehicle and display are released
// before any error is returned from the driving loop.
func run(cfg *settings) error {
	bp, err := blueprint(cfg)
	if err != nil {
		return fmt.Errorf("invalid car configuration: %w", err)
	}

	var client mqtt.Client
	if cfg.needMqtt() {
		client, err = cli.Connect(cfg.mqttBroker, cfg.username, cfg.password, cfg.clientId)
		if err != nil {
			return fmt.Errorf("unable to connect to events broker: %w", err)
		}
		defer client.Disconnect(10)
	}

	src, err := newSource(cfg, client)
	if err != nil {
		return fmt.Errorf("unable to init bus source: %w", err)
	}
	if s, ok := src.(*can.MqttSource); ok {
		defer s.Stop()
	}

	world, err := gateway.Connect(cfg.address, gateway.WithConnectAttempts(cfg.connectAttempts))
	if err != nil {
		return fmt.Errorf("unable to connect to simulator: %w", err)
	}
	vehicle, err := world.SpawnVehicle(*bp)
	if err != nil {
		_ = world.Close()
		return fmt.Errorf("unable to spawn vehicle: %w", err)
	}

	d, err := dashboard.Open(dashboardOptions(cfg, client)...)
	if err != nil {
		if err := world.Close(); err != nil {
			zap.S().Errorf("unable to release vehicle: %v", err)
		}
		return fmt.Errorf("unable to open dashboard: %w", err)
	}

	loop := drive.New(src, vehicle, world, d)
	if err := loop.Run(); err != nil {
		return fmt.Errorf("driving loop failed: %w", err)
	}
	zap.S().Info("dashboard closed, exit")
	return nil
}

func (c *settings) needMqtt() bool {
	return c.source == sourceMqtt || c.topicFrame != "" || c.topicSteering != "" || c.topicThrottle != ""
}

func newSource(cfg *settings, client mqtt.Client) (can.Source, error) {
	switch cfg.source {
	case sourceRandom:
		return can.NewRandomSource(nil), nil
	case sourceRamp:
		return can.NewRampSource(cfg.rampSteps), nil
	case sourceMqtt:
		s := can.NewMqttSource(client, cfg.topicCtrlThrottle, cfg.topicCtrlSteering)
		if err := s.Start(byte(cfg.mqttQos)); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown source '%v'", cfg.source)
}

func blueprint(cfg *settings) (*gateway.Blueprint, error) {
	bodyColors := strings.Split(cfg.carColor, ",")
	if len(bodyColors) != 3 {
		return nil, fmt.Errorf("invalid car color '%v', expected r,g,b", cfg.carColor)
	}
	bp := gateway.Blueprint{
		Car: simulator.CarConfigMsg{
			MsgType:   simulator.MsgTypeCarConfig,
			BodyStyle: simulator.CarStyle(cfg.carStyle),
			BodyR:     bodyColors[0],
			BodyG:     bodyColors[1],
			BodyB:     bodyColors[2],
			CarName:   cfg.carName,
			FontSize:  strconv.Itoa(cfg.carFontSize),
		},
	}
	if cfg.racerName != "" {
		bp.Racer = &simulator.RacerBioMsg{
			MsgType:   simulator.MsgTypeRacerInfo,
			RacerName: cfg.racerName,
			CarName:   cfg.carName,
		}
	}
	if cfg.spawnPoint != "" {
		pos := strings.Split(cfg.spawnPoint, ",")
		if len(pos) != 3 {
			return nil, fmt.Errorf("invalid spawn point '%v', expected x,y,z", cfg.spawnPoint)
		}
		for _, p := range pos {
			if _, err := strconv.ParseFloat(p, 64); err != nil {
				return nil, fmt.Errorf("invalid spawn point '%v': %w", cfg.spawnPoint, err)
			}
		}
		bp.SpawnPoint = &simulator.SetPositionMsg{
			MsgType: simulator.MsgTypeSetPosition,
			PosX:    pos[0],
			PosY:    pos[1],
			PosZ:    pos[2],
		}
	}
	return &bp, nil
}

// dashboardSinks always returns at least the terminal output.
func dashboardSinks(cfg *settings, client mqtt.Client) []dashboard.Sink {
	var sinks []dashboard.Sink
	if cfg.snapshotPath != "" {
		sinks = append(sinks, dashboard.NewSnapshotSink(cfg.snapshotPath, cfg.snapshotEvery))
	}
	if client != nil && (cfg.topicFrame != "" || cfg.topicSteering != "" || cfg.topicThrottle != "") {
		sinks = append(sinks, events.NewMsgPublisher(
			events.NewMqttPublisher(client, byte(cfg.mqttQos), cfg.mqttRetain),
			cfg.topicFrame,
			cfg.topicSteering,
			cfg.topicThrottle,
		))
	}
	if cfg.dashboardText || len(sinks) == 0 {
		sinks = append(sinks, dashboard.NewWriterSink(os.Stdout, true))
	}
	return sinks
}

func dashboardOptions(cfg *settings, client mqtt.Client) []dashboard.Option {
	return []dashboard.Option{
		dashboard.WithSinks(dashboardSinks(cfg, client)...),
		dashboard.WithQuitSignals(),
	}
}
