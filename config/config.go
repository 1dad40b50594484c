// Package config parses the prober's command-line flags into a Config,
// and sets up structured logging. Grounded on go/config/config.go's
// NewFromEnv shape, generalized from environment variables to pflag-parsed
// CLI flags since spec.md §6 specifies an explicitly flag-based interface.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// DriverSpec is one parsed `-D name args` occurrence.
type DriverSpec struct {
	Name string
	Args string
}

// MaxDrivers mirrors spec.md §6's "repeatable, up to 100 drivers".
const MaxDrivers = 100

// Config holds the prober's fully parsed CLI configuration.
type Config struct {
	RoundDurationMs int
	SliceCount      int
	RoundLimit      uint64
	ProbeTimeoutS   int
	DisableAlign    bool
	Drivers         []DriverSpec
	ProbelistPath   string
}

// RoundDuration returns the configured round duration as a time.Duration.
func (c *Config) RoundDuration() time.Duration {
	return time.Duration(c.RoundDurationMs) * time.Millisecond
}

// ProbeTimeout returns the configured probe timeout as a time.Duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutS) * time.Second
}

// driverFlag is a pflag.Value implementation accumulating repeated
// `-D name args` occurrences into a []DriverSpec, mirroring pflag's own
// stringArrayValue pattern.
type driverFlag struct {
	specs *[]DriverSpec
}

func (f *driverFlag) String() string {
	if f.specs == nil || len(*f.specs) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", *f.specs)
}

func (f *driverFlag) Set(raw string) error {
	if len(*f.specs) >= MaxDrivers {
		return fmt.Errorf("config: at most %d -D drivers are supported", MaxDrivers)
	}
	name, args, _ := splitOnce(raw, ' ')
	if name == "" {
		return fmt.Errorf("config: -D requires a driver name")
	}
	*f.specs = append(*f.specs, DriverSpec{Name: name, Args: args})
	return nil
}

func (f *driverFlag) Type() string { return "driverSpec" }

func splitOnce(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// NewFromFlags parses args (typically os.Args[1:]) into a Config,
// applying spec.md §4.3's defaults where a flag is omitted.
func NewFromFlags(progName string, args []string) (*Config, error) {
	fs := pflag.NewFlagSet(progName, pflag.ContinueOnError)

	c := &Config{}
	fs.IntVarP(&c.RoundDurationMs, "round-duration-ms", "d", 600_000, "round duration in milliseconds")
	fs.IntVarP(&c.SliceCount, "slice-count", "s", 60, "number of slices per round")
	var roundLimit int64
	fs.Int64VarP(&roundLimit, "round-limit", "l", 0, "stop after this many rounds (0 = unlimited)")
	fs.IntVarP(&c.ProbeTimeoutS, "probe-timeout-s", "t", 3, "per-probe timeout in seconds")
	fs.BoolVarP(&c.DisableAlign, "no-align", "A", false, "disable round-start wall-clock alignment")
	fs.VarP(&driverFlag{specs: &c.Drivers}, "driver", "D", "driver_name driver_args, repeatable up to 100")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if roundLimit < 0 {
		return nil, fmt.Errorf("config: round-limit must be >= 0")
	}
	c.RoundLimit = uint64(roundLimit)

	rest := fs.Args()
	if len(rest) != 1 {
		return nil, fmt.Errorf("config: expected exactly one positional probelist file path, got %d", len(rest))
	}
	c.ProbelistPath = rest[0]

	if len(c.Drivers) == 0 {
		return nil, fmt.Errorf("config: at least one -D driver must be specified")
	}

	return c, nil
}
