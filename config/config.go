// Package config loads GSE control blocks from TOML or YAML files and
// resolves them into goose.ControlBlock values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cast"
	"gopkg.in/validator.v2"

	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/goose/dataset"
)

// DefaultMaxTime is used when a control block does not set max_time_ms.
const DefaultMaxTime = 2000 * time.Millisecond

// Format of a configuration file
type Format int

const (
	TOML Format = iota
	YAML
)

// FormatFromPath picks the format by file extension; anything but .yaml and
// .yml is TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return TOML
	}
}

// SignalConfig is one data set member.
type SignalConfig struct {
	Desc  string `toml:"desc" yaml:"desc"`
	BType string `toml:"btype" yaml:"btype" validate:"nonzero"`
	Casdu int    `toml:"casdu" yaml:"casdu" validate:"min=0"`
	Ioa   int    `toml:"ioa" yaml:"ioa" validate:"min=0"`
	Ti    int    `toml:"ti" yaml:"ti" validate:"min=0"`
	Value any    `toml:"value" yaml:"value"`
}

// ControlBlockConfig mirrors a GSEControl element together with its
// communication parameters.
type ControlBlockConfig struct {
	Name         string         `toml:"name" yaml:"name" validate:"nonzero"`
	IEDName      string         `toml:"ied_name" yaml:"ied_name" validate:"nonzero"`
	LDInst       string         `toml:"ld_inst" yaml:"ld_inst" validate:"nonzero"`
	LN0Class     string         `toml:"ln0_class" yaml:"ln0_class"`
	GSEControl   string         `toml:"gse_control" yaml:"gse_control" validate:"nonzero"`
	DatSet       string         `toml:"dat_set" yaml:"dat_set" validate:"nonzero"`
	AppID        any            `toml:"app_id" yaml:"app_id"`
	MAC          string         `toml:"mac" yaml:"mac" validate:"nonzero"`
	VLANID       *int           `toml:"vlan_id" yaml:"vlan_id"`
	VLANPriority int            `toml:"vlan_priority" yaml:"vlan_priority" validate:"min=0,max=7"`
	MinTimeMs    int            `toml:"min_time_ms" yaml:"min_time_ms" validate:"min=0"`
	MaxTimeMs    *int           `toml:"max_time_ms" yaml:"max_time_ms"`
	ConfRev      uint32         `toml:"conf_rev" yaml:"conf_rev"`
	Signals      []SignalConfig `toml:"signal" yaml:"signals" validate:"nonzero"`
}

// Config is the content of a configuration file.
type Config struct {
	ControlBlocks []ControlBlockConfig `toml:"control_block" yaml:"control_blocks"`

	resolved map[string]*goose.ControlBlock
	order    []string
}

// Load reads and resolves the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", goose.ErrConfig, err)
	}
	cfg, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data and resolves every control block in it.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data), yaml.Strict())
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %w", goose.ErrConfig, err)
		}
	default:
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: parse toml: %w", goose.ErrConfig, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown keys %v", goose.ErrConfig, undecoded)
		}
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	c.resolved = make(map[string]*goose.ControlBlock, len(c.ControlBlocks))
	c.order = c.order[:0]
	for i := range c.ControlBlocks {
		raw := &c.ControlBlocks[i]
		cb, err := raw.controlBlock()
		if err != nil {
			return fmt.Errorf("control block %d (%s): %w", i, raw.Name, err)
		}
		if _, dup := c.resolved[cb.AppIDName]; dup {
			return fmt.Errorf("%w: duplicate control block %s", goose.ErrConfig, cb.AppIDName)
		}
		c.resolved[cb.AppIDName] = cb
		c.order = append(c.order, cb.AppIDName)
	}
	return nil
}

// Resolve returns the control block registered under appIDName.
func (c *Config) Resolve(appIDName string) (*goose.ControlBlock, error) {
	cb, ok := c.resolved[appIDName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", goose.ErrMissingControlBlock, appIDName)
	}
	return cb, nil
}

// Names lists the control blocks in file order.
func (c *Config) Names() []string {
	return append([]string(nil), c.order...)
}

func validationError(err error) error {
	var errs validator.ErrorMap
	if errors.As(err, &errs) {
		fields := make([]string, 0, len(errs))
		for field, e := range errs {
			fields = append(fields, field+": "+e.Error())
		}
		return fmt.Errorf("%w: %s", goose.ErrConfig, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%w: %w", goose.ErrConfig, err)
}

// timeAllowedToLive is carried as a 32-bit count of milliseconds
const maxTimeMs = 0xFFFFFFFF

// bounded converts v to an integer and checks it against [lo, hi]. Narrowing
// casts wrap silently, so the check runs on the int64 value.
func bounded(field string, v any, lo, hi int64) (int64, error) {
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %v: %w", goose.ErrConfig, field, v, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s %d outside [%d, %d]", goose.ErrConfig, field, n, lo, hi)
	}
	return n, nil
}

func (raw *ControlBlockConfig) controlBlock() (*goose.ControlBlock, error) {
	if err := validator.Validate(raw); err != nil {
		return nil, validationError(err)
	}

	appID, err := bounded("app_id", raw.AppID, 0, 0xFFFF)
	if err != nil {
		return nil, err
	}
	minTime, err := bounded("min_time_ms", raw.MinTimeMs, 0, maxTimeMs)
	if err != nil {
		return nil, err
	}
	mac, err := net.ParseMAC(raw.MAC)
	if err != nil || len(mac) != 6 {
		return nil, fmt.Errorf("%w: mac %q", goose.ErrConfig, raw.MAC)
	}

	cb := &goose.ControlBlock{
		AppIDName:      raw.Name,
		IEDName:        raw.IEDName,
		DeviceName:     raw.LDInst,
		LN0ClassName:   raw.LN0Class,
		GSEControlName: raw.GSEControl,
		DatSetName:     raw.DatSet,
		AppID:          uint16(appID),
		DstMAC:         mac,
		MinTime:        time.Duration(minTime) * time.Millisecond,
		MaxTime:        DefaultMaxTime,
		ConfRev:        raw.ConfRev,
	}
	if cb.LN0ClassName == "" {
		cb.LN0ClassName = "LLN0"
	}
	if raw.MaxTimeMs != nil {
		maxTime, err := bounded("max_time_ms", *raw.MaxTimeMs, 1, maxTimeMs)
		if err != nil {
			return nil, err
		}
		cb.MaxTime = time.Duration(maxTime) * time.Millisecond
	}
	if raw.VLANID != nil {
		vlanID, err := bounded("vlan_id", *raw.VLANID, 0, 0x0FFF)
		if err != nil {
			return nil, err
		}
		cb.VLAN = &goose.VLAN{ID: uint16(vlanID), Priority: uint8(raw.VLANPriority)}
	}

	cb.Signals = make([]goose.Signal, 0, len(raw.Signals))
	for i, s := range raw.Signals {
		if err := validator.Validate(s); err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, validationError(err))
		}
		if _, _, err := dataset.LookupSourceType(s.BType); err != nil {
			return nil, fmt.Errorf("%w: signal %d: %w", goose.ErrConfig, i, err)
		}
		cb.Signals = append(cb.Signals, goose.Signal{
			Desc:    s.Desc,
			BType:   s.BType,
			Casdu:   s.Casdu,
			Ioa:     s.Ioa,
			Ti:      s.Ti,
			Initial: s.Value,
		})
	}

	// validates the block and the initial values against the declared types
	if _, err := goose.NewFrame(cb, nil); err != nil {
		return nil, err
	}
	return cb, nil
}
