package goose

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// MaxVisibleString is the VisibleString35 limit for goCBRef, datSet and goID.
const MaxVisibleString = 35

// TruncateVisibleString keeps the last 35 characters of s.
func TruncateVisibleString(s string) string {
	if len(s) > MaxVisibleString {
		return s[len(s)-MaxVisibleString:]
	}
	return s
}

// Signal is one data set member as declared in configuration.
type Signal struct {
	Desc    string
	BType   string // SCL basic type: BOOLEAN, INT32, FLOAT32, ...
	Casdu   int
	Ioa     int
	Ti      int
	Initial any // optional, stored into the element by NewFrame
}

// Key returns the "casdu.ioa.ti" address of the signal.
func (s Signal) Key() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(s.Casdu))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(s.Ioa))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(s.Ti))
	return b.String()
}

// ParseSignalKey splits a "casdu.ioa.ti" key.
func ParseSignalKey(key string) (casdu, ioa, ti int, err error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	var vals [3]int
	for i, p := range parts {
		if vals[i], err = strconv.Atoi(p); err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q: %v", ErrUnknownKey, key, err)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// ControlBlock is a resolved GSE control block. It is not modified after
// resolution.
type ControlBlock struct {
	AppIDName      string // name the application registers under
	IEDName        string
	DeviceName     string // logical device instance
	LN0ClassName   string
	GSEControlName string
	DatSetName     string
	AppID          uint16
	DstMAC         net.HardwareAddr
	VLAN           *VLAN
	MinTime        time.Duration
	MaxTime        time.Duration
	ConfRev        uint32
	Signals        []Signal // data set order
}

func (cb *ControlBlock) prefix() string {
	return cb.IEDName + cb.DeviceName + "/" + cb.LN0ClassName
}

// GoCBRef returns the control block reference, e.g. "IED1LD0/LLN0$GO$gcb01".
func (cb *ControlBlock) GoCBRef() string {
	return TruncateVisibleString(cb.prefix() + "$GO$" + cb.GSEControlName)
}

// DatSetRef returns the data set reference, e.g. "IED1LD0/LLN0$ds01".
func (cb *ControlBlock) DatSetRef() string {
	return TruncateVisibleString(cb.prefix() + "$" + cb.DatSetName)
}

// GoID returns the GOOSE identifier, the control block name.
func (cb *ControlBlock) GoID() string {
	return TruncateVisibleString(cb.GSEControlName)
}

// TimeAllowedToLive is maxTime in whole milliseconds.
func (cb *ControlBlock) TimeAllowedToLive() uint32 {
	return uint32(cb.MaxTime / time.Millisecond)
}

// Validate checks what the frame and the tasks rely on.
func (cb *ControlBlock) Validate() error {
	if cb.MaxTime <= 0 {
		return fmt.Errorf("%w: %s: maxTime must be positive", ErrConfig, cb.AppIDName)
	}
	if cb.MinTime < 0 || cb.MinTime > cb.MaxTime {
		return fmt.Errorf("%w: %s: minTime %s outside [0, %s]", ErrConfig, cb.AppIDName, cb.MinTime, cb.MaxTime)
	}
	if cb.MaxTime/time.Millisecond > 0xFFFFFFFF {
		return fmt.Errorf("%w: %s: maxTime %s", ErrRange, cb.AppIDName, cb.MaxTime)
	}
	if len(cb.Signals) > 0xFFFF {
		return fmt.Errorf("%w: %s: %d signals", ErrRange, cb.AppIDName, len(cb.Signals))
	}
	if len(cb.DstMAC) != 0 && len(cb.DstMAC) != 6 {
		return fmt.Errorf("%w: %s: destination %s", ErrConfig, cb.AppIDName, cb.DstMAC)
	}
	if cb.VLAN != nil && (cb.VLAN.ID > 0x0FFF || cb.VLAN.Priority > 7) {
		return fmt.Errorf("%w: %s: vlan %d/%d", ErrConfig, cb.AppIDName, cb.VLAN.ID, cb.VLAN.Priority)
	}
	seen := make(map[string]struct{}, len(cb.Signals))
	for _, s := range cb.Signals {
		k := s.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s: duplicate signal %s", ErrConfig, cb.AppIDName, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}
