package sink

import "errors"

// ErrRawUnsupported is returned by [RawConfig.NewRaw] on platforms without raw socket batch I/O.
var ErrRawUnsupported = errors.New("raw IP sink is only supported on Linux")

// RawConfig configures the raw IP socket stage.
type RawConfig struct {
	// DisableIPv4 and DisableIPv6 skip opening the socket of the family.
	// Packets of a disabled family are dropped.
	DisableIPv4 bool `json:"disableIPv4" toml:"disableIPv4"`
	DisableIPv6 bool `json:"disableIPv6" toml:"disableIPv6"`

	// Fwmark sets the sockets' fwmark.
	Fwmark int `json:"fwmark" toml:"fwmark"`

	// SendBufferSize sets the sockets' send buffer size.
	// If zero, a large default is used.
	SendBufferSize int `json:"sendBufferSize" toml:"sendBufferSize"`
}
