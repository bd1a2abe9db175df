package registry

import "errors"

var (
	ErrNoDevices       = errors.New("no devices defined in configuration")
	ErrEmptyDeviceName = errors.New("device name cannot be empty")
	ErrDuplicateDevice = errors.New("duplicate device name")
	ErrUnknownClass    = errors.New("unknown device class")
	ErrUnknownDevice   = errors.New("unknown device")
)
