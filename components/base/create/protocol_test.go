package create

import (
	"encoding/binary"
	"math"
	"testing"

	"go.viam.com/test"
)

func TestGetEncoderDelta(t *testing.T) {
	last := uint16(65530)
	test.That(t, GetEncoderDelta(10, &last), test.ShouldEqual, uint32(16))

	last = 50
	test.That(t, GetEncoderDelta(100, &last), test.ShouldEqual, uint32(50))

	last = 100
	test.That(t, GetEncoderDelta(100, &last), test.ShouldEqual, uint32(0))

	test.That(t, GetEncoderDelta(1234, nil), test.ShouldEqual, uint32(0))
}

func TestModes(t *testing.T) {
	test.That(t, mode2Code(ModeOff), test.ShouldEqual, byte(173))
	test.That(t, mode2Code(ModePassive), test.ShouldEqual, byte(128))
	test.That(t, mode2Code(ModeSafe), test.ShouldEqual, byte(131))
	test.That(t, mode2Code(ModeFull), test.ShouldEqual, byte(132))
	test.That(t, mode2Code(Mode(9)), test.ShouldEqual, byte(173))

	test.That(t, nextModeStep(ModeOff, ModeFull), test.ShouldEqual, ModePassive)
	test.That(t, nextModeStep(ModeOff, ModeSafe), test.ShouldEqual, ModePassive)
	test.That(t, nextModeStep(ModeOff, ModeOff), test.ShouldEqual, ModeOff)
	test.That(t, nextModeStep(ModePassive, ModeFull), test.ShouldEqual, ModeFull)
	test.That(t, nextModeStep(ModeFull, ModeOff), test.ShouldEqual, ModeOff)

	for _, m := range []Mode{ModeOff, ModePassive, ModeSafe, ModeFull} {
		parsed, err := ParseMode(m.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, m)
	}
	parsed, err := ParseMode(" Full ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, ModeFull)
	_, err = ParseMode("turbo")
	test.That(t, err, test.ShouldNotBeNil)

	_, ok := modeFromByte(4)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDriveCommand(t *testing.T) {
	test.That(t, driveCommand(200, -100), test.ShouldResemble, []byte{145, 0xFF, 0x9C, 0x00, 0xC8})
	test.That(t, driveCommand(600, -700), test.ShouldResemble, []byte{145, 0xFE, 0x0C, 0x01, 0xF4})
	test.That(t, driveCommand(0, 0), test.ShouldResemble, []byte{145, 0, 0, 0, 0})
}

type packetFields struct {
	bumps       byte
	mode        Mode
	charge      uint16
	capacity    uint16
	left, right uint16
}

func sensorPacket(f packetFields) []byte {
	buf := make([]byte, sensorPacketLen)
	buf[0] = f.bumps
	binary.BigEndian.PutUint16(buf[22:], f.charge)
	binary.BigEndian.PutUint16(buf[24:], f.capacity)
	buf[40] = byte(f.mode)
	binary.BigEndian.PutUint16(buf[52:], f.left)
	binary.BigEndian.PutUint16(buf[54:], f.right)
	return buf
}

func TestParseSensorPacket(t *testing.T) {
	odo := newOdometer(72, 508.8)

	t.Run("fields", func(t *testing.T) {
		var s State
		buf := sensorPacket(packetFields{bumps: 0x0B, mode: ModeSafe, charge: 1500, capacity: 2696, left: 10, right: 20})
		buf[1] = 1
		buf[3] = 1
		buf[7] = 0x19
		buf[11] = 0x85
		// -10 mm
		binary.BigEndian.PutUint16(buf[12:], uint16(0xFFF6))
		binary.BigEndian.PutUint16(buf[14:], 15)
		buf[16] = byte(TrickleCharging)
		binary.BigEndian.PutUint16(buf[17:], 14800)
		// -400 mA at -5 C
		binary.BigEndian.PutUint16(buf[19:], uint16(0xFE70))
		buf[21] = 0xFB
		binary.BigEndian.PutUint16(buf[30:], 2500)
		buf[39] = 0x02
		binary.BigEndian.PutUint16(buf[50:], 200)
		buf[56] = 0x21
		binary.BigEndian.PutUint16(buf[67:], 300)
		binary.BigEndian.PutUint16(buf[75:], 120)
		buf[79] = 1

		test.That(t, parseSensorPacket(buf, &s, &odo), test.ShouldBeNil)
		test.That(t, s.BumpRight, test.ShouldBeTrue)
		test.That(t, s.BumpLeft, test.ShouldBeTrue)
		test.That(t, s.WheelDropRight, test.ShouldBeFalse)
		test.That(t, s.WheelDropLeft, test.ShouldBeTrue)
		test.That(t, s.Bumped(), test.ShouldBeTrue)
		test.That(t, s.Wall, test.ShouldBeTrue)
		test.That(t, s.Cliffs, test.ShouldResemble, Cliffs{FrontLeft: true, FrontLeftSignal: 2500})
		test.That(t, s.Overcurrents, test.ShouldResemble, Overcurrents{SideBrush: true, RightWheel: true, LeftWheel: true})
		test.That(t, s.Buttons, test.ShouldResemble, Buttons{Clean: true, Dock: true, Clock: true})
		test.That(t, s.Odometry.Distance, test.ShouldEqual, -10)
		test.That(t, s.Odometry.Angle, test.ShouldEqual, 15)
		test.That(t, s.Battery.ChargingState, test.ShouldEqual, TrickleCharging)
		test.That(t, s.Battery.Voltage, test.ShouldEqual, uint16(14800))
		test.That(t, s.Battery.Current, test.ShouldEqual, int16(-400))
		test.That(t, s.Battery.Temperature, test.ShouldEqual, int8(-5))
		test.That(t, s.Battery.HomeBase, test.ShouldBeTrue)
		test.That(t, s.Battery.InternalCharger, test.ShouldBeFalse)
		test.That(t, s.BatteryLeft, test.ShouldEqual, 55)
		test.That(t, s.OIMode, test.ShouldEqual, ModeSafe)
		test.That(t, s.Requested.LeftVelocity, test.ShouldEqual, int16(200))
		test.That(t, s.LightBumper.Left, test.ShouldBeTrue)
		test.That(t, s.LightBumper.Right, test.ShouldBeTrue)
		test.That(t, s.LightBumper.CenterLeft, test.ShouldBeFalse)
		test.That(t, s.LightBumper.RightSignal, test.ShouldEqual, uint16(300))
		test.That(t, s.MotorCurrents.MainBrush, test.ShouldEqual, int16(120))
		test.That(t, s.Stasis, test.ShouldBeTrue)
		test.That(t, s.LeftEncoder, test.ShouldEqual, uint16(10))
		test.That(t, s.RightEncoder, test.ShouldEqual, uint16(20))
	})

	t.Run("battery", func(t *testing.T) {
		s := State{BatteryLeft: 77}
		test.That(t, parseSensorPacket(sensorPacket(packetFields{charge: 50, capacity: 100}), &s, &odo), test.ShouldBeNil)
		test.That(t, s.BatteryLeft, test.ShouldEqual, 50)

		s.BatteryLeft = 77
		test.That(t, parseSensorPacket(sensorPacket(packetFields{charge: 50}), &s, &odo), test.ShouldBeNil)
		test.That(t, s.BatteryLeft, test.ShouldEqual, 77)
	})

	t.Run("odometry", func(t *testing.T) {
		var s State
		odo := newOdometer(72, 508.8)
		test.That(t, parseSensorPacket(sensorPacket(packetFields{left: 65000, right: 100}), &s, &odo), test.ShouldBeNil)
		test.That(t, s.Odometry.LeftEncoderCounts, test.ShouldEqual, uint32(0))

		test.That(t, parseSensorPacket(sensorPacket(packetFields{left: 472, right: 608}), &s, &odo), test.ShouldBeNil)
		test.That(t, s.Odometry.LeftEncoderCounts, test.ShouldEqual, uint32(1008))
		test.That(t, s.Odometry.RightEncoderCounts, test.ShouldEqual, uint32(508))
		test.That(t, s.Odometry.RightWheelDistance, test.ShouldAlmostEqual, 508*math.Pi*72/508.8, 1e-9)

		odo.reset(&s)
		test.That(t, s.Odometry, test.ShouldResemble, Odometry{})
		test.That(t, parseSensorPacket(sensorPacket(packetFields{left: 10000, right: 10000}), &s, &odo), test.ShouldBeNil)
		test.That(t, s.Odometry.LeftEncoderCounts, test.ShouldEqual, uint32(0))
	})

	t.Run("short packet", func(t *testing.T) {
		var s State
		test.That(t, parseSensorPacket(make([]byte, 79), &s, &odo), test.ShouldNotBeNil)
	})
}

func TestCourseCorrection(t *testing.T) {
	l, r := courseCorrection(200, 200, 0, 47, 235)
	test.That(t, l, test.ShouldEqual, 200)
	test.That(t, r, test.ShouldEqual, 120)

	l, r = courseCorrection(200, 200, 47, 0, 235)
	test.That(t, l, test.ShouldEqual, 120)
	test.That(t, r, test.ShouldEqual, 200)

	l, r = courseCorrection(200, 200, 10, 10, 235)
	test.That(t, l, test.ShouldEqual, 200)
	test.That(t, r, test.ShouldEqual, 200)

	// never reverses a wheel
	l, r = courseCorrection(-200, -200, 0, 1000, 235)
	test.That(t, l, test.ShouldEqual, -200)
	test.That(t, r, test.ShouldEqual, 0)
}

func TestConfig(t *testing.T) {
	conf := Config{}
	err := conf.Validate("base")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "serial_path")

	conf = Config{SerialPath: "/dev/ttyUSB1", Mode: "off"}
	test.That(t, conf.Validate("base"), test.ShouldNotBeNil)
	conf = Config{SerialPath: "/dev/ttyUSB1", Mode: "warp"}
	test.That(t, conf.Validate("base"), test.ShouldNotBeNil)
	conf = Config{SerialPath: "/dev/ttyUSB1", WheelDiameterMM: -1}
	test.That(t, conf.Validate("base"), test.ShouldNotBeNil)
	conf = Config{SerialPath: "/dev/ttyUSB1", BaudRate: 250000}
	test.That(t, conf.Validate("base"), test.ShouldNotBeNil)

	conf = Config{SerialPath: "/dev/ttyUSB1"}
	test.That(t, conf.Validate("base"), test.ShouldBeNil)
	conf.ApplyDefaults()
	test.That(t, conf.Mode, test.ShouldEqual, "full")
	test.That(t, conf.SyncPeriod, test.ShouldEqual, defaultSyncPeriod)
	test.That(t, conf.InitRetries, test.ShouldEqual, 5)
	test.That(t, conf.WheelDiameterMM, test.ShouldEqual, 72.0)
	test.That(t, conf.CountsPerRotation, test.ShouldEqual, 508.8)
	test.That(t, conf.DriveTrainDiameterMM, test.ShouldEqual, 235.0)
	test.That(t, conf.RotateArcScale, test.ShouldEqual, 0.92)
	test.That(t, conf.serialOptions().BaudRate, test.ShouldEqual, 115200)
}
