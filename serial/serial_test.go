package serial

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestOptions8N1(t *testing.T) {
	opts := Options8N1(115200)
	test.That(t, opts.BaudRate, test.ShouldEqual, 115200)
	test.That(t, opts.DataBits, test.ShouldEqual, 8)
	test.That(t, opts.Parity, test.ShouldEqual, NoParity)
	test.That(t, opts.StopBits, test.ShouldEqual, OneStopBit)
	test.That(t, opts.ReadTimeout, test.ShouldEqual, time.Second)
	test.That(t, opts.WriteTimeout, test.ShouldEqual, time.Second)
}

func TestOpenMissingDevice(t *testing.T) {
	p, err := Open("/dev/navbot-does-not-exist", Options8N1(115200))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, p, test.ShouldBeNil)
}
