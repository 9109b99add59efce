//go:build !nogpu

// Package gpu registers the "wgpu" backend, which runs the transparency
// pipeline as compute kernels on a Vulkan device through gogpu/wgpu.
//
// Importing the package makes the backend available to oit.NewPipeline.
// When no device can be opened the factory fails and an empty
// Config.Backend falls back to the software backend.
//
// Usage:
//
//	import _ "github.com/gogpu/oit/gpu" // enable the GPU backend
package gpu

import (
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/oit"
	gpuimpl "github.com/gogpu/oit/internal/gpu"
)

var (
	providerMu sync.Mutex
	provider   gpucontext.DeviceProvider
)

func init() {
	oit.RegisterBackend(oit.BackendWGPU, newBackend)
}

func newBackend() (oit.Backend, error) {
	providerMu.Lock()
	p := provider
	providerMu.Unlock()

	var (
		dev *gpuimpl.Device
		err error
	)
	if p != nil {
		dev, err = gpuimpl.DeviceFromProvider(p)
	} else {
		dev, err = gpuimpl.OpenDevice()
	}
	if err != nil {
		return nil, err
	}
	return gpuimpl.NewBackend(dev)
}

// SetDeviceProvider makes backends created afterwards share the device of
// an external provider (e.g., gogpu) instead of opening their own. The
// provider must also expose HalDevice() and HalQueue().
//
// Passing nil restores standalone devices.
func SetDeviceProvider(p gpucontext.DeviceProvider) error {
	if p != nil {
		// Validate eagerly so misconfiguration surfaces here, not at the
		// first pipeline.
		if _, err := gpuimpl.DeviceFromProvider(p); err != nil {
			return err
		}
	}
	providerMu.Lock()
	provider = p
	providerMu.Unlock()
	return nil
}
