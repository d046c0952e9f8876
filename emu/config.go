package emu

import (
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"

	"bbemu/hw/hwerr"
	"bbemu/hw/intc"
	"bbemu/hw/periph"
)

// Config describes the machine: clock tree, interrupt lines and the
// peripherals wired to them.
type Config struct {
	Clock      ClockConfig      `toml:"clock"`
	Intc       IntcConfig       `toml:"intc"`
	GPTimers   []GPTimerConfig  `toml:"gptimer"`
	SoftIRQ    SoftIRQConfig    `toml:"softirq"`
	SleepTimer SleepTimerConfig `toml:"sleeptimer"`
	Bridge     BridgeConfig     `toml:"bridge"`
}

type ClockConfig struct {
	SysHz     uint64 `toml:"sys_hz"`
	PeriphDiv uint64 `toml:"periph_div"` // peripheral clock = sys_hz / periph_div
	SleepHz   uint64 `toml:"sleep_hz"`
}

type IntcConfig struct {
	Policy string       `toml:"policy"` // flat or nested
	Lines  []LineConfig `toml:"line"`
}

type LineConfig struct {
	Name     string `toml:"name"`
	Class    string `toml:"class"` // normal or fast
	Priority uint8  `toml:"priority"`
	Weight   uint8  `toml:"weight"`
	Trigger  string `toml:"trigger"` // edge or level
	Dynamic  bool   `toml:"dynamic"`
}

type GPTimerConfig struct {
	Name     string   `toml:"name"`
	Addr     uint32   `toml:"addr"`
	Compares int      `toml:"compares"`
	Lines    []string `toml:"lines"`
}

type SoftIRQConfig struct {
	Addr  uint32   `toml:"addr"`
	Lines []string `toml:"lines"`
}

type SleepTimerConfig struct {
	Addr uint32 `toml:"addr"`
	Line string `toml:"line"`
}

type BridgeConfig struct {
	Addr string `toml:"addr"` // listen address, empty disables the bridge
}

// Register block sizes.
const (
	gptimerSize    = 0x40
	softIRQSize    = 0x100
	sleepTimerSize = 0x10
)

// DefaultConfig returns a machine with two general purpose timers, eight
// software interrupts and a sleep timer.
func DefaultConfig() Config {
	cfg := Config{
		Clock: ClockConfig{SysHz: 104_000_000, PeriphDiv: 8, SleepHz: periph.SleepClockHz},
		Intc: IntcConfig{
			Policy: "nested",
			Lines: []LineConfig{
				{Name: "gpt0", Class: "normal", Priority: 4},
				{Name: "gpt0.cmp", Class: "normal", Priority: 5},
				{Name: "gpt1", Class: "fast", Priority: 8},
				{Name: "sleep", Class: "normal", Priority: 1, Dynamic: true},
			},
		},
		GPTimers: []GPTimerConfig{
			{Name: "gpt0", Addr: 0x8000_0000, Compares: 4, Lines: []string{"gpt0", "gpt0.cmp"}},
			{Name: "gpt1", Addr: 0x8000_0100, Compares: 2, Lines: []string{"gpt1"}},
		},
		SoftIRQ:    SoftIRQConfig{Addr: 0x8000_1000},
		SleepTimer: SleepTimerConfig{Addr: 0x8000_2000, Line: "sleep"},
	}
	for i := 0; i < 8; i++ {
		name := "swi" + string(rune('0'+i))
		cfg.Intc.Lines = append(cfg.Intc.Lines, LineConfig{Name: name, Class: "normal", Dynamic: true})
		cfg.SoftIRQ.Lines = append(cfg.SoftIRQ.Lines, name)
	}
	return cfg
}

// LoadConfig reads a toml machine description. Clock frequencies left
// unset take their default value.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, hwerr.Configf(path, "unknown keys: %s", strings.Join(keys, ", "))
	}

	def := DefaultConfig().Clock
	if cfg.Clock.SysHz == 0 {
		cfg.Clock.SysHz = def.SysHz
	}
	if cfg.Clock.PeriphDiv == 0 {
		cfg.Clock.PeriphDiv = def.PeriphDiv
	}
	if cfg.Clock.SleepHz == 0 {
		cfg.Clock.SleepHz = def.SleepHz
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}

func triggerByName(name string) (intc.Trigger, bool) {
	switch name {
	case "", "edge":
		return intc.Edge, true
	case "level":
		return intc.Level, true
	}
	return 0, false
}

// LineTable builds the arbiter line table.
func (cfg *Config) LineTable() (*intc.LineTable, error) {
	t := intc.NewLineTable()
	for _, lc := range cfg.Intc.Lines {
		class, ok := intc.ClassByName(lc.Class)
		if !ok {
			return nil, hwerr.Configf("intc", "line %q: unknown class %q", lc.Name, lc.Class)
		}
		trig, ok := triggerByName(lc.Trigger)
		if !ok {
			return nil, hwerr.Configf("intc", "line %q: unknown trigger %q", lc.Name, lc.Trigger)
		}
		if lc.Priority >= 1<<5 {
			return nil, hwerr.Configf("intc", "line %q: priority %d out of range [0,31]", lc.Name, lc.Priority)
		}
		_, err := t.Add(intc.LineSpec{
			Name:     lc.Name,
			Class:    class,
			Priority: lc.Priority,
			Weight:   lc.Weight,
			Trigger:  trig,
			Dynamic:  lc.Dynamic,
		})
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

type region struct {
	name       string
	begin, end uint64
}

// Validate checks the consistency of the configuration.
func (cfg *Config) Validate() error {
	if cfg.Clock.SysHz == 0 {
		return hwerr.Configf("clock", "sys_hz must not be zero")
	}
	if cfg.Clock.SleepHz == 0 {
		return hwerr.Configf("clock", "sleep_hz must not be zero")
	}
	if _, err := intc.PolicyByName(cfg.Intc.Policy); err != nil {
		return err
	}
	table, err := cfg.LineTable()
	if err != nil {
		return err
	}
	if table.Len() == 0 {
		return hwerr.Configf("intc", "no interrupt lines")
	}

	used := make(map[string]string)
	wire := func(owner, line string) error {
		if _, ok := table.Lookup(line); !ok {
			return hwerr.Configf(owner, "unknown interrupt line %q", line)
		}
		if prev, ok := used[line]; ok {
			return hwerr.Configf(owner, "line %q already driven by %s", line, prev)
		}
		used[line] = owner
		return nil
	}

	var regions []region
	mapAt := func(name string, addr uint32, size uint64) {
		regions = append(regions, region{name, uint64(addr), uint64(addr) + size - 1})
	}

	for _, gc := range cfg.GPTimers {
		if gc.Name == "" {
			return hwerr.Configf("gptimer", "timer without name")
		}
		if gc.Compares < 0 || gc.Compares > periph.MaxCompares {
			return hwerr.Configf(gc.Name, "%d compare registers, at most %d supported", gc.Compares, periph.MaxCompares)
		}
		if len(gc.Lines) == 0 || len(gc.Lines) > 2 {
			return hwerr.Configf(gc.Name, "%d interrupt lines, want 1 or 2", len(gc.Lines))
		}
		for _, l := range gc.Lines {
			if err := wire(gc.Name, l); err != nil {
				return err
			}
		}
		mapAt(gc.Name, gc.Addr, gptimerSize)
	}
	if len(cfg.SoftIRQ.Lines) > periph.MaxSoftLines {
		return hwerr.Configf("softirq", "%d lines, at most %d supported", len(cfg.SoftIRQ.Lines), periph.MaxSoftLines)
	}
	for _, l := range cfg.SoftIRQ.Lines {
		if err := wire("softirq", l); err != nil {
			return err
		}
	}
	if len(cfg.SoftIRQ.Lines) > 0 {
		mapAt("softirq", cfg.SoftIRQ.Addr, softIRQSize)
	}
	if cfg.SleepTimer.Line != "" {
		if err := wire("sleeptimer", cfg.SleepTimer.Line); err != nil {
			return err
		}
		mapAt("sleeptimer", cfg.SleepTimer.Addr, sleepTimerSize)
	}

	slices.SortFunc(regions, func(a, b region) int {
		switch {
		case a.begin < b.begin:
			return -1
		case a.begin > b.begin:
			return 1
		}
		return 0
	})
	for i, r := range regions {
		if r.end > 0xFFFF_FFFF {
			return hwerr.Configf(r.name, "register block wraps around the address space")
		}
		if i > 0 && regions[i-1].end >= r.begin {
			return hwerr.Configf(r.name, "register block overlaps %s", regions[i-1].name)
		}
	}
	return nil
}
