package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// DataSetsPath is the top-level struct holding data set definitions,
// keyed by data set id.
const DataSetsPath = "dataset"

// Build loads the CUE instance formed by args, resolved against dir.
// args are package patterns ("." for the whole directory) or .cue files.
func Build(dir string, args ...string) (cue.Value, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Validate(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}

// CompileAll compiles every data set under DataSetsPath in declaration
// order. With failFast it stops at the first error; otherwise it compiles
// what it can and returns every error.
func CompileAll(v cue.Value, failFast bool) ([]*DataSetDef, []error) {
	sets := v.LookupPath(cue.ParsePath(DataSetsPath))
	if !sets.Exists() {
		return nil, nil
	}
	iter, err := sets.Fields()
	if err != nil {
		return nil, []error{fmt.Errorf("iterating data sets: %w", err)}
	}

	var defs []*DataSetDef
	var errs []error
	for iter.Next() {
		def, err := CompileDataSet(iter.Value())
		if err != nil {
			errs = append(errs, err)
			if failFast {
				return defs, errs
			}
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

// Lookup returns the definition labelled name.
func Lookup(defs []*DataSetDef, name string) (*DataSetDef, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}
