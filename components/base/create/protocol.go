package create

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/navbot/navbot/utils"
)

// Open Interface opcodes.
const (
	opReset       byte = 7
	opStart       byte = 128
	opSafe        byte = 131
	opFull        byte = 132
	opSensors     byte = 142
	opDriveDirect byte = 145
	opStop        byte = 173

	packetOIMode    byte = 35
	packetGroup100  byte = 100
	sensorPacketLen      = 80

	// MaxWheelSpeed is the largest wheel velocity the base accepts, in mm/s.
	MaxWheelSpeed = 500

	encoderRange = 65536
)

// Mode is the Open Interface operating mode.
type Mode int32

// The Open Interface modes, in the order the base reports them.
const (
	ModeOff Mode = iota
	ModePassive
	ModeSafe
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModePassive:
		return "passive"
	case ModeSafe:
		return "safe"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode parses a mode name as written in config.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return ModeOff, nil
	case "passive":
		return ModePassive, nil
	case "safe":
		return ModeSafe, nil
	case "full":
		return ModeFull, nil
	default:
		return ModeOff, errors.Errorf("unknown mode %q", s)
	}
}

func modeFromByte(b byte) (Mode, bool) {
	if b > byte(ModeFull) {
		return ModeOff, false
	}
	return Mode(b), true
}

// mode2Code is the opcode that puts the base into m.
func mode2Code(m Mode) byte {
	switch m {
	case ModeOff:
		return opStop
	case ModePassive:
		return opStart
	case ModeSafe:
		return opSafe
	case ModeFull:
		return opFull
	default:
		return opStop
	}
}

// nextModeStep is the mode to command this cycle to move from confirmed towards desired.
// Safe and Full can only be entered once the interface has been started.
func nextModeStep(confirmed, desired Mode) Mode {
	if confirmed == ModeOff && desired != ModeOff {
		return ModePassive
	}
	return desired
}

// driveCommand drives each wheel at the given velocity in mm/s. Right comes first on the wire.
func driveCommand(left, right int) []byte {
	left = utils.ClampInt(left, -MaxWheelSpeed, MaxWheelSpeed)
	right = utils.ClampInt(right, -MaxWheelSpeed, MaxWheelSpeed)
	cmd := make([]byte, 5)
	cmd[0] = opDriveDirect
	binary.BigEndian.PutUint16(cmd[1:], uint16(int16(right)))
	binary.BigEndian.PutUint16(cmd[3:], uint16(int16(left)))
	return cmd
}

func modeQuery() []byte {
	return []byte{opSensors, packetOIMode}
}

func sensorsQuery() []byte {
	return []byte{opSensors, packetGroup100}
}

// GetEncoderDelta returns how far an encoder moved since last, assuming it only counts up and
// wrapped at most once. Without a previous reading the delta is 0.
func GetEncoderDelta(current uint16, last *uint16) uint32 {
	if last == nil {
		return 0
	}
	if current < *last {
		return uint32(current) + encoderRange - uint32(*last)
	}
	return uint32(current - *last)
}

// parseSensorPacket applies an 80 byte group 100 packet to s.
func parseSensorPacket(buf []byte, s *State, odo *odometer) error {
	if len(buf) != sensorPacketLen {
		return errors.Errorf("sensor packet must be %d bytes, got %d", sensorPacketLen, len(buf))
	}
	be := binary.BigEndian
	bit := func(b byte, n uint) bool {
		return b&(1<<n) != 0
	}
	u16 := func(off int) uint16 {
		return be.Uint16(buf[off:])
	}
	s16 := func(off int) int16 {
		return int16(be.Uint16(buf[off:]))
	}

	s.BumpRight = bit(buf[0], 0)
	s.BumpLeft = bit(buf[0], 1)
	s.WheelDropRight = bit(buf[0], 2)
	s.WheelDropLeft = bit(buf[0], 3)
	s.Wall = buf[1] != 0
	s.Cliffs.Left = buf[2] != 0
	s.Cliffs.FrontLeft = buf[3] != 0
	s.Cliffs.FrontRight = buf[4] != 0
	s.Cliffs.Right = buf[5] != 0
	s.VirtualWall = buf[6] != 0

	s.Overcurrents = Overcurrents{
		SideBrush:  bit(buf[7], 0),
		MainBrush:  bit(buf[7], 2),
		RightWheel: bit(buf[7], 3),
		LeftWheel:  bit(buf[7], 4),
	}
	s.DirtDetect = buf[8]
	s.IROmni = buf[10]
	s.Buttons = Buttons{
		Clean:    bit(buf[11], 0),
		Spot:     bit(buf[11], 1),
		Dock:     bit(buf[11], 2),
		Minute:   bit(buf[11], 3),
		Hour:     bit(buf[11], 4),
		Day:      bit(buf[11], 5),
		Schedule: bit(buf[11], 6),
		Clock:    bit(buf[11], 7),
	}

	// distance and angle are since the previous request
	s.Odometry.Distance += int(s16(12))
	s.Odometry.Angle += int(s16(14))

	s.Battery.ChargingState = ChargingState(buf[16])
	s.Battery.Voltage = u16(17)
	s.Battery.Current = s16(19)
	s.Battery.Temperature = int8(buf[21])
	s.Battery.Charge = u16(22)
	s.Battery.Capacity = u16(24)
	if s.Battery.Capacity != 0 {
		s.BatteryLeft = int(s.Battery.Charge) * 100 / int(s.Battery.Capacity)
	}

	s.WallSignal = u16(26)
	s.Cliffs.LeftSignal = u16(28)
	s.Cliffs.FrontLeftSignal = u16(30)
	s.Cliffs.FrontRightSignal = u16(32)
	s.Cliffs.RightSignal = u16(34)
	s.Battery.InternalCharger = bit(buf[39], 0)
	s.Battery.HomeBase = bit(buf[39], 1)

	if mode, ok := modeFromByte(buf[40]); ok {
		s.OIMode = mode
	}

	s.Requested = RequestedMotion{
		Velocity:      s16(44),
		Radius:        s16(46),
		RightVelocity: s16(48),
		LeftVelocity:  s16(50),
	}

	odo.update(s, u16(52), u16(54))

	s.LightBumper = LightBumper{
		Left:        bit(buf[56], 0),
		FrontLeft:   bit(buf[56], 1),
		CenterLeft:  bit(buf[56], 2),
		CenterRight: bit(buf[56], 3),
		FrontRight:  bit(buf[56], 4),
		Right:       bit(buf[56], 5),

		LeftSignal:        u16(57),
		FrontLeftSignal:   u16(59),
		CenterLeftSignal:  u16(61),
		CenterRightSignal: u16(63),
		FrontRightSignal:  u16(65),
		RightSignal:       u16(67),
	}
	s.IRLeft = buf[69]
	s.IRRight = buf[70]

	s.MotorCurrents = MotorCurrents{
		LeftWheel:  s16(71),
		RightWheel: s16(73),
		MainBrush:  s16(75),
		SideBrush:  s16(77),
	}
	s.Stasis = bit(buf[79], 0)
	return nil
}
