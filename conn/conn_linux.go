package conn

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Source: include/uapi/linux/uio.h
const UIO_MAXIOV = 1024

// DefaultRawSocketBufferSize is the default send buffer size of raw IP sockets.
const DefaultRawSocketBufferSize = 7 << 20

// RawSocketOptions contains options for raw IP sockets.
type RawSocketOptions struct {
	// SendBufferSize sets the send buffer size of the socket.
	//
	// This is only supported on Linux and Windows.
	SendBufferSize int

	// Fwmark sets the socket's fwmark on Linux, or user cookie on FreeBSD.
	//
	// Available on Linux and FreeBSD.
	Fwmark int

	// HeaderIncluded makes the kernel send packets as written, IP header included.
	HeaderIncluded bool
}

type setFunc = func(fd int, network string) error

type setFuncSlice []setFunc

func (fns setFuncSlice) controlFunc() func(network, address string, c syscall.RawConn) error {
	if len(fns) == 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) (err error) {
		if cerr := c.Control(func(fd uintptr) {
			for _, fn := range fns {
				if err = fn(int(fd), network); err != nil {
					return
				}
			}
		}); cerr != nil {
			return cerr
		}
		return
	}
}

func setSendBufferSize(fd, size int) error {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, size)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUFFORCE, size)
	return nil
}

func setFwmark(fd, fwmark int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, fwmark); err != nil {
		return fmt.Errorf("failed to set socket option SO_MARK: %w", err)
	}
	return nil
}

func setHeaderIncluded(fd int, network string) error {
	switch network {
	case "ip4":
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
			return fmt.Errorf("failed to set socket option IP_HDRINCL: %w", err)
		}
	case "ip6":
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_HDRINCL, 1); err != nil {
			return fmt.Errorf("failed to set socket option IPV6_HDRINCL: %w", err)
		}
	default:
		return fmt.Errorf("unsupported network: %s", network)
	}
	return nil
}

func (fns setFuncSlice) appendSetSendBufferSize(size int) setFuncSlice {
	if size > 0 {
		return append(fns, func(fd int, _ string) error {
			return setSendBufferSize(fd, size)
		})
	}
	return fns
}

func (fns setFuncSlice) appendSetFwmarkFunc(fwmark int) setFuncSlice {
	if fwmark != 0 {
		return append(fns, func(fd int, _ string) error {
			return setFwmark(fd, fwmark)
		})
	}
	return fns
}

func (fns setFuncSlice) appendSetHeaderIncludedFunc(hdrincl bool) setFuncSlice {
	if hdrincl {
		return append(fns, setHeaderIncluded)
	}
	return fns
}

func (opts RawSocketOptions) buildSetFns() setFuncSlice {
	return setFuncSlice{}.
		appendSetSendBufferSize(opts.SendBufferSize).
		appendSetFwmarkFunc(opts.Fwmark).
		appendSetHeaderIncludedFunc(opts.HeaderIncluded)
}

// ListenConfig is [net.ListenConfig] with socket options applied.
type ListenConfig net.ListenConfig

// ListenConfig returns a [ListenConfig] that sets the socket options.
func (opts RawSocketOptions) ListenConfig() ListenConfig {
	return ListenConfig{
		Control: opts.buildSetFns().controlFunc(),
	}
}

// ListenRawIP opens a raw IP socket for the SCTP protocol.
// network must be "ip4" or "ip6".
func (lc *ListenConfig) ListenRawIP(ctx context.Context, network string) (RawIPConn, error) {
	var address string
	switch network {
	case "ip4":
		address = "0.0.0.0"
	case "ip6":
		address = "::"
	default:
		return RawIPConn{}, fmt.Errorf("unsupported network: %s", network)
	}

	pc, err := (*net.ListenConfig)(lc).ListenPacket(ctx, network+":132", address)
	if err != nil {
		return RawIPConn{}, err
	}
	return NewRawIPConn(pc.(*net.IPConn))
}
