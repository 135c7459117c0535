package utils

import (
	"fmt"
	"log/slog"

	"github.com/notargets/gocca"
)

// DefaultBackends lists OCCA device properties in order of preference
var DefaultBackends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// CreateDevice returns the first OCCA device that can be created from
// backends, DefaultBackends when none are given
func CreateDevice(logger *slog.Logger, backends ...string) (*gocca.OCCADevice, error) {
	if len(backends) == 0 {
		backends = DefaultBackends
	}
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	for _, props := range backends {
		device, err := gocca.NewDevice(props)
		if err == nil {
			logger.Debug("created device", "mode", device.Mode())
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no OCCA backend available from %d candidates: %w", len(backends), lastErr)
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	device, err := CreateDevice(nil)
	if err != nil {
		panic(err)
	}
	return device
}
