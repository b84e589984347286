package conn

import (
	"net"
	"net/netip"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

type Mmsghdr struct {
	Msghdr unix.Msghdr
	Msglen uint32
}

func sendmmsg(fd int, msgvec []Mmsghdr, flags int) (int, syscall.Errno) {
	r0, _, e1 := unix.Syscall6(unix.SYS_SENDMMSG, uintptr(fd), uintptr(unsafe.Pointer(unsafe.SliceData(msgvec))), uintptr(len(msgvec)), uintptr(flags), 0, 0)
	if e1 != 0 {
		return 0, e1
	}
	return int(r0), 0
}

// RawIPConn is a raw IP socket prepared for batch I/O.
type RawIPConn struct {
	*net.IPConn
	rawConn syscall.RawConn
}

// NewRawIPConn wraps a [net.IPConn] in a [RawIPConn] for batch I/O.
func NewRawIPConn(ipConn *net.IPConn) (RawIPConn, error) {
	rawConn, err := ipConn.SyscallConn()
	if err != nil {
		return RawIPConn{}, err
	}

	return RawIPConn{
		IPConn:  ipConn,
		rawConn: rawConn,
	}, nil
}

// MmsgWConn wraps a raw IP socket and provides the [WriteMsgs] method
// for writing multiple messages in a single sendmmsg(2) system call.
//
// [MmsgWConn] is not safe for concurrent use.
// Use the [WConn] method to create a new [MmsgWConn] instance for each goroutine.
type MmsgWConn struct {
	RawIPConn
	rawWriteFunc func(fd uintptr) (done bool)
	writeMsgvec  []Mmsghdr
	writeFlags   int
	writeErrno   syscall.Errno
	writeDropped int
}

// WConn returns a new [MmsgWConn] instance for batch writing.
func (c RawIPConn) WConn() *MmsgWConn {
	mmsgWConn := MmsgWConn{
		RawIPConn: c,
	}

	mmsgWConn.rawWriteFunc = func(fd uintptr) (done bool) {
		for {
			n, errno := sendmmsg(int(fd), mmsgWConn.writeMsgvec, mmsgWConn.writeFlags)
			switch errno {
			case 0:
			case syscall.EAGAIN:
				return false
			default:
				// Drop the message that caused the error and carry on.
				mmsgWConn.writeErrno = errno
				mmsgWConn.writeDropped++
				mmsgWConn.writeMsgvec = mmsgWConn.writeMsgvec[1:]
				if len(mmsgWConn.writeMsgvec) == 0 {
					return true
				}
				continue
			}

			mmsgWConn.writeMsgvec = mmsgWConn.writeMsgvec[n:]

			if len(mmsgWConn.writeMsgvec) == 0 {
				return true
			}

			// A short write means the socket buffer is full.
			// sendmmsg(2) sends up to UIO_MAXIOV messages per call.
			if n == UIO_MAXIOV {
				continue
			}

			return false
		}
	}

	return &mmsgWConn
}

// WriteMsgs writes all messages in the given msgvec.
// It returns the number of messages dropped because of errors and the last encountered error.
func (c *MmsgWConn) WriteMsgs(msgvec []Mmsghdr, flags int) (dropped int, err error) {
	c.writeMsgvec = msgvec
	c.writeFlags = flags
	c.writeErrno = 0
	c.writeDropped = 0
	if err := c.rawConn.Write(c.rawWriteFunc); err != nil {
		return len(c.writeMsgvec), err
	}
	if c.writeErrno != 0 {
		return c.writeDropped, os.NewSyscallError("sendmmsg", c.writeErrno)
	}
	return 0, nil
}

// AddrToSockaddrInet4 returns the sockaddr of addr for a raw IPv4 socket.
func AddrToSockaddrInet4(addr netip.Addr) unix.RawSockaddrInet4 {
	return unix.RawSockaddrInet4{
		Family: unix.AF_INET,
		Addr:   addr.Unmap().As4(),
	}
}

// AddrToSockaddrInet6 returns the sockaddr of addr for a raw IPv6 socket.
func AddrToSockaddrInet6(addr netip.Addr) unix.RawSockaddrInet6 {
	return unix.RawSockaddrInet6{
		Family: unix.AF_INET6,
		Addr:   addr.As16(),
	}
}
