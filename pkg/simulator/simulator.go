package simulator

type MsgType string

const (
	MsgTypeControl      = MsgType("control")
	MsgTypeTelemetry    = MsgType("telemetry")
	MsgTypeCarConfig    = MsgType("car_config")
	MsgTypeCarLoaded    = MsgType("car_loaded")
	MsgTypeRacerInfo    = MsgType("racer_info")
	MsgTypeCameraConfig = MsgType("cam_config")
	MsgTypeSetPosition  = MsgType("set_position")
)

type Msg struct {
	MsgType MsgType `json:"msg_type"`
}

// TelemetryMsg is emitted by the simulator once per physics step. Velocity
// fields are absent on old simulator builds and then decode as zero.
type TelemetryMsg struct {
	MsgType       MsgType `json:"msg_type"`
	SteeringAngle float64 `json:"steering_angle"`
	Throttle      float64 `json:"throttle"`
	Speed         float64 `json:"speed"`
	Image         []byte  `json:"image"`
	Hit           string  `json:"hit"`
	PosX          float64 `json:"pos_x"`
	PosY          float64 `json:"pos_y"`
	PosZ          float64 `json:"pos_z"`
	VelX          float64 `json:"vel_x"`
	VelY          float64 `json:"vel_y"`
	VelZ          float64 `json:"vel_z"`
	Time          float64 `json:"time"`
	Cte           float64 `json:"cte"`
}

// ControlMsg is json msg used to control cars. MsgType must be filled with "control"
type ControlMsg struct {
	MsgType  MsgType `json:"msg_type"`
	Steering string  `json:"steering"`
	Throttle string  `json:"throttle"`
	Brake    string  `json:"brake"`
}

type CarStyle string

const (
	CarConfigBodyStyleDonkey = CarStyle("donkey")
	CarConfigBodyStyleBare   = CarStyle("bare")
	CarConfigBodyStyleCar01  = CarStyle("car01")
)

// CarConfigMsg spawns the car:
//   - body_style = "donkey" | "bare" | "car01" choice of string
//   - body_rgb  = (128, 128, 128) tuple of ints
//   - car_name = "string less than 64 char"
type CarConfigMsg struct {
	MsgType   MsgType  `json:"msg_type"`
	BodyStyle CarStyle `json:"body_style"`
	BodyR     string   `json:"body_r"`
	BodyG     string   `json:"body_g"`
	BodyB     string   `json:"body_b"`
	CarName   string   `json:"car_name"`
	FontSize  string   `json:"font_size"`
}

// RacerBioMsg describes the racer, car_name is less than 64 char and guid
// is some random string.
type RacerBioMsg struct {
	MsgType   MsgType `json:"msg_type"`
	RacerName string  `json:"racer_name"`
	CarName   string  `json:"car_name"`
	Bio       string  `json:"bio"`
	Country   string  `json:"country"`
	Guid      string  `json:"guid"`
}

// SetPositionMsg moves the car to a spawn point once loaded.
type SetPositionMsg struct {
	MsgType MsgType `json:"msg_type"`
	PosX    string  `json:"pos_x"`
	PosY    string  `json:"pos_y"`
	PosZ    string  `json:"pos_z"`
}
