package create

import (
	"math"
)

// ChargingState is the battery charging state reported by the base.
type ChargingState uint8

// Charging states.
const (
	NotCharging ChargingState = iota
	ReconditioningCharging
	FullCharging
	TrickleCharging
	Waiting
	ChargingFault
)

func (c ChargingState) String() string {
	switch c {
	case NotCharging:
		return "not charging"
	case ReconditioningCharging:
		return "reconditioning"
	case FullCharging:
		return "full charging"
	case TrickleCharging:
		return "trickle charging"
	case Waiting:
		return "waiting"
	case ChargingFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Cliffs are the four downward facing cliff sensors.
type Cliffs struct {
	Left       bool `json:"left"`
	FrontLeft  bool `json:"front_left"`
	FrontRight bool `json:"front_right"`
	Right      bool `json:"right"`

	LeftSignal       uint16 `json:"left_signal"`
	FrontLeftSignal  uint16 `json:"front_left_signal"`
	FrontRightSignal uint16 `json:"front_right_signal"`
	RightSignal      uint16 `json:"right_signal"`
}

// LightBumper is the infrared proximity bumper.
type LightBumper struct {
	Left        bool `json:"left"`
	FrontLeft   bool `json:"front_left"`
	CenterLeft  bool `json:"center_left"`
	CenterRight bool `json:"center_right"`
	FrontRight  bool `json:"front_right"`
	Right       bool `json:"right"`

	LeftSignal        uint16 `json:"left_signal"`
	FrontLeftSignal   uint16 `json:"front_left_signal"`
	CenterLeftSignal  uint16 `json:"center_left_signal"`
	CenterRightSignal uint16 `json:"center_right_signal"`
	FrontRightSignal  uint16 `json:"front_right_signal"`
	RightSignal       uint16 `json:"right_signal"`
}

// Overcurrents flags motors drawing too much current.
type Overcurrents struct {
	LeftWheel  bool `json:"left_wheel"`
	RightWheel bool `json:"right_wheel"`
	MainBrush  bool `json:"main_brush"`
	SideBrush  bool `json:"side_brush"`
}

// Buttons are the buttons on top of the base.
type Buttons struct {
	Clean    bool `json:"clean"`
	Spot     bool `json:"spot"`
	Dock     bool `json:"dock"`
	Minute   bool `json:"minute"`
	Hour     bool `json:"hour"`
	Day      bool `json:"day"`
	Schedule bool `json:"schedule"`
	Clock    bool `json:"clock"`
}

// Battery is the power state.
type Battery struct {
	Charge   uint16 `json:"charge_mah"`
	Capacity uint16 `json:"capacity_mah"`
	// Voltage is in mV.
	Voltage uint16 `json:"voltage_mv"`
	// Current is in mA, negative when discharging.
	Current       int16         `json:"current_ma"`
	Temperature   int8          `json:"temperature_c"`
	ChargingState ChargingState `json:"charging_state"`

	InternalCharger bool `json:"internal_charger"`
	HomeBase        bool `json:"home_base"`
}

// Odometry is accumulated since it was last reset, which every motion does when it starts.
type Odometry struct {
	// Distance in mm and Angle in degrees as reported by the base.
	Distance int `json:"distance_mm"`
	Angle    int `json:"angle_deg"`

	LeftEncoderCounts  uint32  `json:"left_encoder_counts"`
	RightEncoderCounts uint32  `json:"right_encoder_counts"`
	LeftWheelDistance  float64 `json:"left_wheel_distance_mm"`
	RightWheelDistance float64 `json:"right_wheel_distance_mm"`
}

// RequestedMotion is the motion the base was last asked for.
type RequestedMotion struct {
	Velocity      int16 `json:"velocity"`
	Radius        int16 `json:"radius"`
	RightVelocity int16 `json:"right_velocity"`
	LeftVelocity  int16 `json:"left_velocity"`
}

// MotorCurrents are in mA.
type MotorCurrents struct {
	LeftWheel  int16 `json:"left_wheel"`
	RightWheel int16 `json:"right_wheel"`
	MainBrush  int16 `json:"main_brush"`
	SideBrush  int16 `json:"side_brush"`
}

// State is a snapshot of everything the base reports.
type State struct {
	BumpLeft       bool `json:"bump_left"`
	BumpRight      bool `json:"bump_right"`
	WheelDropLeft  bool `json:"wheel_drop_left"`
	WheelDropRight bool `json:"wheel_drop_right"`
	Wall           bool `json:"wall"`
	VirtualWall    bool `json:"virtual_wall"`
	Stasis         bool `json:"stasis"`

	Cliffs       Cliffs       `json:"cliffs"`
	LightBumper  LightBumper  `json:"light_bumper"`
	Overcurrents Overcurrents `json:"overcurrents"`
	Buttons      Buttons      `json:"buttons"`

	DirtDetect uint8  `json:"dirt_detect"`
	IROmni     uint8  `json:"ir_omni"`
	IRLeft     uint8  `json:"ir_left"`
	IRRight    uint8  `json:"ir_right"`
	WallSignal uint16 `json:"wall_signal"`

	Battery Battery `json:"battery"`
	// BatteryLeft is the charge in percent of capacity.
	BatteryLeft int `json:"battery_left"`

	Odometry      Odometry        `json:"odometry"`
	OIMode        Mode            `json:"oi_mode"`
	Requested     RequestedMotion `json:"requested"`
	MotorCurrents MotorCurrents   `json:"motor_currents"`

	// LeftEncoder and RightEncoder are the raw encoder readings.
	LeftEncoder  uint16 `json:"left_encoder"`
	RightEncoder uint16 `json:"right_encoder"`
}

// Bumped reports whether either bumper is pressed.
func (s State) Bumped() bool {
	return s.BumpLeft || s.BumpRight
}

// odometer turns raw encoder readings into accumulated counts and wheel distances.
type odometer struct {
	lastLeft   *uint16
	lastRight  *uint16
	mmPerCount float64
}

func newOdometer(wheelDiameterMM, countsPerRotation float64) odometer {
	return odometer{mmPerCount: math.Pi * wheelDiameterMM / countsPerRotation}
}

func (o *odometer) update(s *State, left, right uint16) {
	s.LeftEncoder = left
	s.RightEncoder = right
	s.Odometry.LeftEncoderCounts += GetEncoderDelta(left, o.lastLeft)
	s.Odometry.RightEncoderCounts += GetEncoderDelta(right, o.lastRight)
	o.lastLeft = &left
	o.lastRight = &right
	s.Odometry.LeftWheelDistance = o.wheelDistance(s.Odometry.LeftEncoderCounts)
	s.Odometry.RightWheelDistance = o.wheelDistance(s.Odometry.RightEncoderCounts)
}

// wheelDistance is in mm.
func (o *odometer) wheelDistance(counts uint32) float64 {
	return float64(counts) * o.mmPerCount
}

// reset zeroes the accumulated odometry. The next encoder reading becomes the new reference.
func (o *odometer) reset(s *State) {
	o.lastLeft = nil
	o.lastRight = nil
	s.Odometry = Odometry{}
}
