package common

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	ini "github.com/lars-t-hansen/ini"
)

// User defaults are read from ~/.jobcost, eg
//
//   [jobcost]
//   config=/etc/slurm/jobcost.conf
//   format=short
//   percentile-step=10
//
// Values from the command line take precedence.  Environment variables in values are expanded.

// MT: Constant after initialization
var (
	p                   = ini.NewParser()
	store               *ini.Store
	section             = p.AddSection("jobcost")
	DefaultConfig       = section.AddString("config")
	DefaultFormat       = section.AddString("format")
	DefaultSource       = section.AddString("source")
	DefaultSacctProgram = section.AddString("sacct")
	DefaultDatabaseURI  = section.AddString("database-uri")
	DefaultKafkaBroker  = section.AddString("kafka-broker")
	DefaultCluster      = section.AddString("cluster")
	DefaultPercentile   = section.AddString("percentile-step")
	DefaultPrecision    = section.AddString("precision")
)

// Read ~/.jobcost if it exists.  Errors are logged but not fatal; the defaults are a convenience.
func LoadDefaults() {
	home := os.Getenv("HOME")
	if home == "" {
		return
	}
	fn := path.Join(path.Clean(home), ".jobcost")
	input, err := os.Open(fn)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			Log.Errorf("Error in trying to open %s: %s", fn, err.Error())
		}
		return
	}
	defer input.Close()
	if err := LoadDefaultsFrom(input); err != nil {
		Log.Errorf("Error in trying to parse %s: %s", fn, err.Error())
	}
}

func LoadDefaultsFrom(input io.Reader) error {
	s, err := p.Parse(input)
	if err != nil {
		return err
	}
	store = s
	return nil
}

func HasDefault(f *ini.Field) bool {
	return store != nil && f.Present(store)
}

func ApplyDefault(sp *string, f *ini.Field) bool {
	if *sp != "" || !HasDefault(f) {
		return false
	}
	*sp = os.ExpandEnv(f.StringVal(store))
	return true
}

// Apply an integer default to *ip if *ip is zero.
func ApplyIntDefault(ip *int, f *ini.Field) (bool, error) {
	if *ip != 0 || !HasDefault(f) {
		return false, nil
	}
	n, err := strconv.Atoi(os.ExpandEnv(f.StringVal(store)))
	if err != nil {
		return false, fmt.Errorf("Bad integer default: %w", err)
	}
	*ip = n
	return true, nil
}
