// Package config holds the poolhttpd configuration: an optional HCL file
// overlaid with command line flags and the positional port argument.
package config

import (
	"errors"
	"fmt"

	"github.com/TecharoHQ/poolhttpd"
	libconfig "github.com/TecharoHQ/poolhttpd/lib/config"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

type Toplevel struct {
	Bind    *Bind              `hcl:"bind,block"`
	Logging *libconfig.Logging `hcl:"logging,block"`
}

func Default() *Toplevel {
	return &Toplevel{
		Bind:    &Bind{HTTP: poolhttpd.DefaultBind},
		Logging: (libconfig.Logging{}).Default(),
	}
}

// Load reads fname, or returns the defaults when fname is empty. Blocks
// and attributes missing from the file keep their defaults.
func Load(fname string) (*Toplevel, error) {
	result := Default()
	if fname == "" {
		return result, nil
	}

	var fromFile Toplevel
	if err := hclsimple.DecodeFile(fname, nil, &fromFile); err != nil {
		return nil, fmt.Errorf("can't read configuration file %s:\n\n%w", fname, err)
	}

	if fromFile.Bind != nil {
		if fromFile.Bind.HTTP != "" {
			result.Bind.HTTP = fromFile.Bind.HTTP
		}
		result.Bind.Metrics = fromFile.Bind.Metrics
	}

	if fromFile.Logging != nil {
		result.Logging = fromFile.Logging
	}

	return result, nil
}

// ApplyArgs applies the positional arguments: none, or exactly one port.
func (t *Toplevel) ApplyArgs(args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		port, err := ParsePort(args[0])
		if err != nil {
			return err
		}

		t.Bind.WithPort(port)
		return nil
	default:
		return fmt.Errorf("%w, got %q", ErrTooManyArgs, args)
	}
}

func (t *Toplevel) Valid() error {
	var errs []error

	if t.Bind == nil {
		errs = append(errs, fmt.Errorf("%w: bind block", libconfig.ErrMissingValue))
	} else if err := t.Bind.Valid(); err != nil {
		errs = append(errs, err)
	}

	if t.Logging != nil {
		if err := t.Logging.Valid(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}
