package utils

// Guard runs a cleanup when a function that acquired something returns early with an error.
//
//	guard := NewGuard(func() { port.Close() })
//	defer guard.OnFail()
//	...
//	guard.Success()
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a Guard that runs onFailCleanup unless Success is called first.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success marks the function as having succeeded.
func (guard *Guard) Success() {
	guard.success = true
}
