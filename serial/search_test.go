package serial

import (
	"testing"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
	"go.viam.com/test"
)

func TestSearch(t *testing.T) {
	prev := detailedPortsList
	t.Cleanup(func() { detailedPortsList = prev })

	detailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6015", SerialNumber: "DN0261ZK"},
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10C4", PID: "EA60"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"},
			{Name: "/dev/ttyACM1", IsUSB: true, VID: "zz", PID: "0043"},
		}, nil
	}

	devices, err := Search()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, devices, test.ShouldHaveLength, 5)
	test.That(t, devices[0], test.ShouldResemble, DeviceDescription{
		Path: "/dev/ttyACM0",
		USB:  &USBIdentifier{Vendor: 0x2341, Product: 0x0043},
	})
	test.That(t, devices[1], test.ShouldResemble, DeviceDescription{Path: "/dev/ttyACM1"})
	test.That(t, devices[2], test.ShouldResemble, DeviceDescription{Path: "/dev/ttyS0"})
	test.That(t, devices[3].Kind, test.ShouldEqual, DeviceLidar)
	test.That(t, devices[4].Kind, test.ShouldEqual, DeviceCreate)
	test.That(t, devices[4].SerialNumber, test.ShouldEqual, "DN0261ZK")

	paths, err := SearchKind(DeviceLidar)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, paths, test.ShouldResemble, []string{"/dev/ttyUSB0"})

	detailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no sysfs")
	}
	_, err = Search()
	test.That(t, err, test.ShouldNotBeNil)
}
