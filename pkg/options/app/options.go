// Package app defines the contract between application options and the
// application bootstrap framework.
package app

import "github.com/spf13/pflag"

// NamedFlagSets groups pflag.FlagSet by name and preserves registration order
// for deterministic help output.
type NamedFlagSets struct {
	// Order is the order in which flag sets were registered.
	Order []string
	// FlagSets maps a name to its flag set.
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set with the given name, creating it on first use.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = make(map[string]*pflag.FlagSet)
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}

// CliOptions abstracts configuration options used to read parameters from the
// command line.
type CliOptions interface {
	// Flags returns flags grouped into named flag sets.
	Flags() NamedFlagSets
	// Validate checks the options for correctness.
	Validate() error
	// Complete fills in defaults derived from other options.
	Complete() error
}
