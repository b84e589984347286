package tx

import (
	"fmt"
	"time"

	"github.com/database64128/sctptx-go/checksum"
	"github.com/database64128/sctptx-go/jsonhelper"
)

const (
	// defaultARwnd is the default advertised receiver window credit.
	defaultARwnd = 1 << 20

	// defaultStreams is the default number of inbound and outbound streams.
	defaultStreams = 10

	// defaultCookieLifespan is the default validity period of the state cookies we hand out.
	defaultCookieLifespan = 60 * time.Second

	// defaultRTOInitial and defaultRTOMax are RTO.Initial and RTO.Max from RFC 4960 section 15.
	defaultRTOInitial = 3 * time.Second
	defaultRTOMax     = 60 * time.Second

	// defaultFrameSize is the default capacity of an output batch.
	defaultFrameSize = 256

	// maxFrameSize is the largest allowed output batch.
	maxFrameSize = 1024
)

// Config holds the engine settings.
// It may be marshaled as or unmarshaled from JSON or TOML.
type Config struct {
	// ARwnd is the advertised receiver window credit sent in INIT, INIT_ACK and SACK chunks.
	ARwnd uint32 `json:"aRwnd" toml:"aRwnd"`

	// OutboundStreams is the number of outbound streams announced in INIT and INIT_ACK.
	OutboundStreams uint16 `json:"outboundStreams" toml:"outboundStreams"`

	// InboundStreams is the maximum number of inbound streams announced in INIT and INIT_ACK.
	InboundStreams uint16 `json:"inboundStreams" toml:"inboundStreams"`

	// CookieLifespan is the validity period of the state cookies we hand out.
	CookieLifespan jsonhelper.Duration `json:"cookieLifespan" toml:"cookieLifespan"`

	// RTOInitial is the RTO given to new associations.
	RTOInitial jsonhelper.Duration `json:"rtoInitial" toml:"rtoInitial"`

	// RTOMax caps the RTO after backoff.
	RTOMax jsonhelper.Duration `json:"rtoMax" toml:"rtoMax"`

	// FrameSize is the capacity of an output batch.
	FrameSize int `json:"frameSize" toml:"frameSize"`

	// Checksum selects the SCTP checksum algorithm.
	//
	// Available values:
	// - "internet": One's-complement sum over the pseudo-header and the SCTP packet. This is the default.
	// - "crc32c": CRC32c as specified by RFC 4960.
	Checksum checksum.Algorithm `json:"checksum" toml:"checksum"`
}

// CheckAndApplyDefaults checks and applies default values to the configuration.
func (c *Config) CheckAndApplyDefaults() error {
	if c.ARwnd == 0 {
		c.ARwnd = defaultARwnd
	}
	if c.OutboundStreams == 0 {
		c.OutboundStreams = defaultStreams
	}
	if c.InboundStreams == 0 {
		c.InboundStreams = defaultStreams
	}

	switch {
	case c.CookieLifespan > 0:
	case c.CookieLifespan == 0:
		c.CookieLifespan = jsonhelper.Duration(defaultCookieLifespan)
	default:
		return fmt.Errorf("negative cookie lifespan: %s", time.Duration(c.CookieLifespan))
	}

	switch {
	case c.RTOInitial > 0:
	case c.RTOInitial == 0:
		c.RTOInitial = jsonhelper.Duration(defaultRTOInitial)
	default:
		return fmt.Errorf("negative initial RTO: %s", time.Duration(c.RTOInitial))
	}

	switch {
	case c.RTOMax >= c.RTOInitial:
	case c.RTOMax == 0:
		c.RTOMax = jsonhelper.Duration(max(defaultRTOMax, time.Duration(c.RTOInitial)))
	default:
		return fmt.Errorf("max RTO %s is less than initial RTO %s", time.Duration(c.RTOMax), time.Duration(c.RTOInitial))
	}

	switch {
	case c.FrameSize > 0 && c.FrameSize <= maxFrameSize:
	case c.FrameSize == 0:
		c.FrameSize = defaultFrameSize
	default:
		return fmt.Errorf("frame size out of range [0, %d]: %d", maxFrameSize, c.FrameSize)
	}

	switch c.Checksum {
	case checksum.AlgorithmInternet, checksum.AlgorithmCRC32C:
	default:
		return fmt.Errorf("unknown checksum algorithm: %s", c.Checksum)
	}

	return nil
}
