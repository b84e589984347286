package chunk

import "encoding/binary"

// DataHeaderLen is the length of the DATA chunk header, including the chunk header.
const DataHeaderLen = 16

// DATA chunk flags.
const (
	DataFlagEnding    uint8 = 1 << 0
	DataFlagBeginning uint8 = 1 << 1
	DataFlagUnordered uint8 = 1 << 2
)

// Data describes the header of a DATA chunk whose user data is carried separately.
type Data struct {
	Unordered bool
	Beginning bool
	Ending    bool

	TSN       uint32
	StreamID  uint16
	StreamSeq uint16
	PPID      uint32

	// PayloadLen is the length of the user data that follows the header.
	PayloadLen int
}

func (Data) Type() Type { return TypeData }

func (d Data) Flags() uint8 {
	var f uint8
	if d.Unordered {
		f |= DataFlagUnordered
	}
	if d.Beginning {
		f |= DataFlagBeginning
	}
	if d.Ending {
		f |= DataFlagEnding
	}
	return f
}

// Len returns the value of the length field: the header plus the user data, without padding.
func (d Data) Len() int {
	return DataHeaderLen + d.PayloadLen
}

// PutHeader writes the [DataHeaderLen]-byte DATA chunk header into b.
func (d Data) PutHeader(b []byte) error {
	n := d.Len()
	if n > 0xffff {
		return ErrBadLength
	}
	if len(b) < DataHeaderLen {
		return ErrShort
	}
	Header{Type: TypeData, Flags: d.Flags(), Length: uint16(n)}.Put(b)
	binary.BigEndian.PutUint32(b[4:8], d.TSN)
	binary.BigEndian.PutUint16(b[8:10], d.StreamID)
	binary.BigEndian.PutUint16(b[10:12], d.StreamSeq)
	binary.BigEndian.PutUint32(b[12:16], d.PPID)
	return nil
}

// ParseData parses the DATA chunk header at the start of b.
func ParseData(b []byte) (Data, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return Data{}, err
	}
	if len(b) < DataHeaderLen || h.Length < DataHeaderLen {
		return Data{}, ErrShort
	}
	return Data{
		Unordered:  h.Flags&DataFlagUnordered != 0,
		Beginning:  h.Flags&DataFlagBeginning != 0,
		Ending:     h.Flags&DataFlagEnding != 0,
		TSN:        binary.BigEndian.Uint32(b[4:8]),
		StreamID:   binary.BigEndian.Uint16(b[8:10]),
		StreamSeq:  binary.BigEndian.Uint16(b[10:12]),
		PPID:       binary.BigEndian.Uint32(b[12:16]),
		PayloadLen: int(h.Length) - DataHeaderLen,
	}, nil
}
