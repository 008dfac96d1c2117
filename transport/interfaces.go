package transport

import (
	"fmt"
	"net"
)

// Interface описывает сетевой интерфейс, пригодный для GOOSE
type Interface struct {
	Name  string
	Index int
	MAC   net.HardwareAddr
	Flags net.Flags
}

// Up сообщает, поднят ли интерфейс
func (i Interface) Up() bool {
	return i.Flags&net.FlagUp != 0
}

func (i Interface) String() string {
	return fmt.Sprintf("%d: %s %s <%s>", i.Index, i.Name, i.MAC, i.Flags)
}

// Interfaces возвращает интерфейсы с адресом EUI-48
func Interfaces() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var out []Interface
	for _, ifi := range ifs {
		if len(ifi.HardwareAddr) != 6 {
			continue
		}
		out = append(out, Interface{
			Name:  ifi.Name,
			Index: ifi.Index,
			MAC:   ifi.HardwareAddr,
			Flags: ifi.Flags,
		})
	}
	return out, nil
}
