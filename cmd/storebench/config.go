package main

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"
)

// Config is the bench configuration. It is read from an optional YAML file;
// flags given on the command line override it.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Budget   BudgetConfig   `yaml:"budget"`
	Workload WorkloadConfig `yaml:"workload"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// StoreConfig sizes the resource store.
type StoreConfig struct {
	MaxSize     ByteSize `yaml:"max_size"` // 0 = unlimited
	IndexShards int      `yaml:"index_shards"`
}

// BudgetConfig sizes the memory budget glyphs and fonts are charged to.
type BudgetConfig struct {
	Limit ByteSize `yaml:"limit"` // 0 = unlimited
}

// WorkloadConfig shapes the synthetic document workload.
type WorkloadConfig struct {
	Workers   int           `yaml:"workers"`
	Duration  time.Duration `yaml:"duration"`
	Glyphs    int           `yaml:"glyphs"`     // indirect keyspace
	Fonts     int           `yaml:"fonts"`      // opaque keyspace
	FontPct   int           `yaml:"font_pct"`   // share of requests for fonts
	GlyphSize ByteSize      `yaml:"glyph_size"` // mean glyph bitmap size
	FontSize  ByteSize      `yaml:"font_size"`
	ZipfS     float64       `yaml:"zipf_s"`
	ZipfV     float64       `yaml:"zipf_v"`
	Seed      int64         `yaml:"seed"`
}

// HTTPConfig holds listen addresses. Empty disables the endpoint.
type HTTPConfig struct {
	Metrics string `yaml:"metrics"`
	Pprof   string `yaml:"pprof"`
}

// DefaultConfig returns a workload that keeps a 64 MiB budget under steady
// pressure.
func DefaultConfig() Config {
	return Config{
		Store:  StoreConfig{MaxSize: 48 << 20},
		Budget: BudgetConfig{Limit: 64 << 20},
		Workload: WorkloadConfig{
			Workers:   2 * runtime.GOMAXPROCS(0),
			Duration:  10 * time.Second,
			Glyphs:    200_000,
			Fonts:     32,
			FontPct:   2,
			GlyphSize: 2 << 10,
			FontSize:  256 << 10,
			ZipfS:     1.1,
			ZipfV:     1.0,
			Seed:      time.Now().UnixNano(),
		},
		HTTP: HTTPConfig{Metrics: ":8080"},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, errors.CodeInvalidConfig, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, errors.CodeInvalidConfig, "parse config %s", path)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	w := c.Workload
	switch {
	case w.Workers <= 0:
		return invalid("workload.workers", w.Workers, "must be positive")
	case w.Duration <= 0:
		return invalid("workload.duration", w.Duration, "must be positive")
	case w.Glyphs < 2:
		return invalid("workload.glyphs", w.Glyphs, "must be at least 2")
	case w.Fonts <= 0:
		return invalid("workload.fonts", w.Fonts, "must be positive")
	case w.FontPct < 0 || w.FontPct > 100:
		return invalid("workload.font_pct", w.FontPct, "must be in [0,100]")
	case w.GlyphSize == 0 || w.FontSize == 0:
		return invalid("workload.glyph_size", w.GlyphSize, "sizes must be positive")
	case w.ZipfS <= 1:
		return invalid("workload.zipf_s", w.ZipfS, "must be > 1")
	case w.ZipfV < 1:
		return invalid("workload.zipf_v", w.ZipfV, "must be >= 1")
	case c.Store.IndexShards < 0:
		return invalid("store.index_shards", c.Store.IndexShards, "must not be negative")
	case c.Budget.Limit != 0 && uint64(c.Budget.Limit) < uint64(w.FontSize):
		return invalid("budget.limit", c.Budget.Limit, "smaller than one font")
	}
	return nil
}

func invalid(field string, value any, why string) error {
	err := errors.New(errors.CodeInvalidConfig, "invalid "+field+": "+why)
	return errors.WithContext(err, field, value)
}

// ByteSize is a byte count that reads from YAML as an integer or as a string
// with a binary unit suffix ("64MiB", "512KiB", "2GiB", "100B").
type ByteSize uint64

var byteUnits = []struct {
	suffix string
	shift  uint
}{
	{"GiB", 30}, {"MiB", 20}, {"KiB", 10}, {"G", 30}, {"M", 20}, {"K", 10}, {"B", 0},
}

// ParseByteSize parses an integer with an optional binary unit suffix.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	shift := uint(0)
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, shift = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.shift
			break
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeInvalidInput, "byte size %q", s)
	}
	if shift > 0 && n > (^uint64(0))>>shift {
		return 0, errors.Newf(errors.CodeInvalidInput, "byte size %q overflows", s)
	}
	return ByteSize(n << shift), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Newf(errors.CodeInvalidConfig, "line %d: byte size must be a scalar", node.Line)
	}
	v, err := ParseByteSize(node.Value)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Set implements flag.Value.
func (b *ByteSize) Set(s string) error {
	v, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b ByteSize) String() string {
	for _, u := range byteUnits[:3] {
		if b != 0 && uint64(b)&(1<<u.shift-1) == 0 {
			return strconv.FormatUint(uint64(b)>>u.shift, 10) + u.suffix
		}
	}
	return strconv.FormatUint(uint64(b), 10) + "B"
}
