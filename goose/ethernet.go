package goose

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/slonegd/gogoose/ber"
)

const (
	EtherTypeGOOSE uint16 = 0x88B8
	EtherTypeVLAN  uint16 = 0x8100

	ethernetHeaderLen = 14
	vlanTagLen        = 4

	// MaxPacketSize is the capacity of a frame buffer: an 802.1Q tagged
	// Ethernet frame without FCS.
	MaxPacketSize = 1518
	// MaxAPDUSize bounds the PDU from the appID octet on, the Length field.
	MaxAPDUSize = 1492
)

// VLAN is an 802.1Q tag. Priority is the 3 bit PCP, ID the 12 bit VID.
type VLAN struct {
	Priority uint8
	ID       uint16
}

func (v VLAN) tci() uint16 {
	return uint16(v.Priority&0x07)<<13 | v.ID&0x0FFF
}

func vlanFromTCI(tci uint16) VLAN {
	return VLAN{Priority: uint8(tci >> 13), ID: tci & 0x0FFF}
}

// Ethernet is the envelope around a GOOSE PDU.
type Ethernet struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	VLAN      *VLAN
	EtherType uint16
}

// Len returns the envelope size in bytes.
func (e Ethernet) Len() int {
	if e.VLAN != nil {
		return ethernetHeaderLen + vlanTagLen
	}
	return ethernetHeaderLen
}

// Encode writes the envelope at the start of buffer.
func (e Ethernet) Encode(buffer []byte) (int, error) {
	if len(buffer) < e.Len() {
		return -1, fmt.Errorf("%w: ethernet header", ber.ErrBufferOverflow)
	}
	if err := copyMAC(buffer[0:6], e.Dst); err != nil {
		return -1, fmt.Errorf("destination: %w", err)
	}
	if err := copyMAC(buffer[6:12], e.Src); err != nil {
		return -1, fmt.Errorf("source: %w", err)
	}
	pos := 12
	if e.VLAN != nil {
		binary.BigEndian.PutUint16(buffer[pos:], EtherTypeVLAN)
		binary.BigEndian.PutUint16(buffer[pos+2:], e.VLAN.tci())
		pos += vlanTagLen
	}
	binary.BigEndian.PutUint16(buffer[pos:], e.EtherType)
	return pos + 2, nil
}

func copyMAC(dst []byte, mac net.HardwareAddr) error {
	switch len(mac) {
	case 0:
		clear(dst)
	case 6:
		copy(dst, mac)
	default:
		return fmt.Errorf("%w: MAC %s is not EUI-48", ErrRange, mac)
	}
	return nil
}

// ParseEthernet validates the Ethernet -> optional 802.1Q -> GOOSE chain and
// returns the envelope together with the offset of the GOOSE PDU.
func ParseEthernet(pkt []byte) (Ethernet, int, error) {
	if len(pkt) < ethernetHeaderLen {
		return Ethernet{}, -1, fmt.Errorf("%w: %d bytes is shorter than an ethernet header", ErrFormat, len(pkt))
	}
	e := Ethernet{
		Dst: net.HardwareAddr(append([]byte(nil), pkt[0:6]...)),
		Src: net.HardwareAddr(append([]byte(nil), pkt[6:12]...)),
	}
	pos := 12
	etherType := binary.BigEndian.Uint16(pkt[pos:])
	pos += 2

	if etherType == EtherTypeVLAN {
		if len(pkt) < pos+vlanTagLen {
			return Ethernet{}, -1, fmt.Errorf("%w: truncated 802.1Q tag", ErrFormat)
		}
		v := vlanFromTCI(binary.BigEndian.Uint16(pkt[pos:]))
		e.VLAN = &v
		etherType = binary.BigEndian.Uint16(pkt[pos+2:])
		pos += vlanTagLen
		if etherType == EtherTypeVLAN {
			return Ethernet{}, -1, fmt.Errorf("%w: stacked 802.1Q tags", ErrFormat)
		}
	}

	e.EtherType = etherType
	if etherType != EtherTypeGOOSE {
		return e, -1, fmt.Errorf("%w: ethertype 0x%04x", ErrNotGoose, etherType)
	}
	return e, pos, nil
}
