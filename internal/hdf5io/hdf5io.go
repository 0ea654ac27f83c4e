// Package hdf5io stores numeric analysis results in HDF5 files. Nested maps
// become groups and numeric leaves become float64 datasets.
package hdf5io

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"gonum.org/v1/hdf5"
)

var ErrNonNumeric = errors.New("value is not numeric")

// Dataset is a dense row-major float64 array stored at a slash separated path.
type Dataset struct {
	Path string
	Dims []uint
	Data []float64
}

// Flatten walks a tree of maps, numbers, booleans, numeric slices and
// rectangular numeric matrices. Booleans are stored as 0 or 1. Any other
// leaf is rejected with ErrNonNumeric.
func Flatten(tree map[string]any) ([]Dataset, error) {
	var out []Dataset
	if err := flatten("", tree, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func flatten(prefix string, v any, out *[]Dataset) error {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if err := checkName(prefix, k); err != nil {
				return err
			}
			if err := flatten(prefix+"/"+k, child, out); err != nil {
				return err
			}
		}
		return nil
	case map[string]float64:
		for k, f := range t {
			if err := checkName(prefix, k); err != nil {
				return err
			}
			*out = append(*out, Dataset{Path: prefix + "/" + k, Dims: []uint{1}, Data: []float64{f}})
		}
		return nil
	case map[string][]float64:
		for k, row := range t {
			if err := checkName(prefix, k); err != nil {
				return err
			}
			*out = append(*out, vector(prefix+"/"+k, row))
		}
		return nil
	case []float64:
		*out = append(*out, vector(prefix, t))
		return nil
	case [][]float64:
		d, err := matrix(prefix, t)
		if err != nil {
			return err
		}
		*out = append(*out, d)
		return nil
	case []any:
		return flattenList(prefix, t, out)
	}
	f, ok := scalar(v)
	if !ok {
		return fmt.Errorf("%s: %w (%T)", prefix, ErrNonNumeric, v)
	}
	*out = append(*out, Dataset{Path: prefix, Dims: []uint{1}, Data: []float64{f}})
	return nil
}

// checkName rejects names that would be empty or split into extra groups.
func checkName(prefix, name string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid name %q under %q", name, prefix)
	}
	return nil
}

func scalar(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// flattenList handles decoded JSON arrays, which hold either numbers or
// equally long numeric arrays.
func flattenList(prefix string, list []any, out *[]Dataset) error {
	if len(list) == 0 {
		*out = append(*out, vector(prefix, nil))
		return nil
	}
	if _, nested := list[0].([]any); !nested {
		row := make([]float64, len(list))
		for i, v := range list {
			f, ok := scalar(v)
			if !ok {
				return fmt.Errorf("%s[%d]: %w (%T)", prefix, i, ErrNonNumeric, v)
			}
			row[i] = f
		}
		*out = append(*out, vector(prefix, row))
		return nil
	}
	rows := make([][]float64, len(list))
	for i, v := range list {
		inner, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s[%d]: %w (%T)", prefix, i, ErrNonNumeric, v)
		}
		rows[i] = make([]float64, len(inner))
		for j, x := range inner {
			f, ok := scalar(x)
			if !ok {
				return fmt.Errorf("%s[%d][%d]: %w (%T)", prefix, i, j, ErrNonNumeric, x)
			}
			rows[i][j] = f
		}
	}
	d, err := matrix(prefix, rows)
	if err != nil {
		return err
	}
	*out = append(*out, d)
	return nil
}

func vector(p string, row []float64) Dataset {
	return Dataset{Path: p, Dims: []uint{uint(len(row))}, Data: append([]float64(nil), row...)}
}

func matrix(p string, rows [][]float64) (Dataset, error) {
	d := Dataset{Path: p, Dims: []uint{uint(len(rows)), 0}}
	for i, r := range rows {
		if i == 0 {
			d.Dims[1] = uint(len(r))
		} else if uint(len(r)) != d.Dims[1] {
			return Dataset{}, fmt.Errorf("%s: ragged matrix", p)
		}
		d.Data = append(d.Data, r...)
	}
	return d, nil
}

// Write creates (or truncates) the file at name and stores every dataset,
// creating intermediate groups as needed.
func Write(name string, datasets []Dataset) (e error) {
	f, err := hdf5.CreateFile(name, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	groups := map[string]*hdf5.Group{}
	defer func() {
		for _, g := range groups {
			g.Close()
		}
		if err := f.Close(); err != nil && e == nil {
			e = err
		}
	}()

	for _, d := range datasets {
		dir, base := path.Split(strings.TrimPrefix(d.Path, "/"))
		dir = strings.TrimSuffix(dir, "/")
		if base == "" {
			return fmt.Errorf("dataset with empty name at %q", d.Path)
		}
		parent := &f.CommonFG
		if dir != "" {
			g, err := group(f, groups, dir)
			if err != nil {
				return err
			}
			parent = &g.CommonFG
		}
		if err := writeDataset(parent, base, d); err != nil {
			return fmt.Errorf("write %s: %w", d.Path, err)
		}
	}
	return nil
}

// group returns the group at dir, creating it and its ancestors once.
func group(f *hdf5.File, groups map[string]*hdf5.Group, dir string) (*hdf5.Group, error) {
	if g, ok := groups[dir]; ok {
		return g, nil
	}
	parent := &f.CommonFG
	name := dir
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		p, err := group(f, groups, dir[:i])
		if err != nil {
			return nil, err
		}
		parent = &p.CommonFG
		name = dir[i+1:]
	}
	g, err := parent.CreateGroup(name)
	if err != nil {
		return nil, fmt.Errorf("create group %s: %w", dir, err)
	}
	groups[dir] = g
	return g, nil
}

func writeDataset(parent *hdf5.CommonFG, name string, d Dataset) error {
	dims := d.Dims
	data := d.Data
	if len(data) == 0 {
		// empty vectors are stored as a single zero
		dims, data = []uint{1}, []float64{0}
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	ds, err := parent.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return err
	}
	defer ds.Close()
	return ds.Write(&data)
}

// Read loads the dataset stored at p.
func Read(name, p string) (Dataset, error) {
	f, err := hdf5.OpenFile(name, hdf5.F_ACC_RDONLY)
	if err != nil {
		return Dataset{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	ds, err := f.OpenDataset(strings.TrimPrefix(p, "/"))
	if err != nil {
		return Dataset{}, fmt.Errorf("open dataset %s: %w", p, err)
	}
	defer ds.Close()
	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return Dataset{}, err
	}
	size := uint(1)
	for _, n := range dims {
		size *= n
	}
	data := make([]float64, size)
	if err := ds.Read(&data); err != nil {
		return Dataset{}, err
	}
	return Dataset{Path: p, Dims: dims, Data: data}, nil
}
