package gpu

import "fmt"

// Drivers known to the step kernels. None is linked into this module; a
// binding registers itself with RegisterBackend.
const (
	DriverCUDA   = "cuda"
	DriverOpenCL = "opencl"
)

// unlinkedDriver stands in for a named device driver whose binding is not
// part of the build. It reports itself unavailable, so Open fails with
// ErrBackendUnavailable and the commands can fall back to the mock.
type unlinkedDriver struct {
	name string
}

// RegisterUnlinkedDriver registers a placeholder for the named driver.
func RegisterUnlinkedDriver(name string) {
	RegisterBackend(unlinkedDriver{name: name})
}

func (d unlinkedDriver) Info() BackendInfo {
	return BackendInfo{
		Name:        d.name,
		Version:     "unlinked",
		Description: fmt.Sprintf("%s step kernels (driver binding not built in)", d.name),
	}
}

func (d unlinkedDriver) Available() bool { return false }

func (d unlinkedDriver) Devices() ([]DeviceInfo, error) {
	return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, d.name)
}

func (d unlinkedDriver) NewContext(int) (Context, error) {
	return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, d.name)
}
