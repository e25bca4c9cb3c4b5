// Package changes renders field level differences between two snapshots of
// the same entity as the JSON details stored on history events.
package changes

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the single layout timestamps are rendered in.
const TimeLayout = time.RFC3339Nano

type Change struct {
	FieldName string `json:"fieldName"`
	OldValue  string `json:"oldValue"`
	NewValue  string `json:"newValue"`
}

type document struct {
	Changes []Change `json:"changes"`
}

// Diff compares two values of the same struct type field by field in
// declaration order. A nil side is treated as the zero value of the other.
func Diff(oldV, newV any) (string, error) {
	list, err := Compute(oldV, newV)
	if err != nil {
		return "", err
	}
	return Render(list)
}

// Compute returns the ordered list of differing fields.
func Compute(oldV, newV any) ([]Change, error) {
	ov, nv := indirect(reflect.ValueOf(oldV)), indirect(reflect.ValueOf(newV))
	switch {
	case !ov.IsValid() && !nv.IsValid():
		return []Change{}, nil
	case !ov.IsValid():
		ov = reflect.Zero(nv.Type())
	case !nv.IsValid():
		nv = reflect.Zero(ov.Type())
	}
	if ov.Type() != nv.Type() {
		return nil, fmt.Errorf("changes: cannot diff %s against %s", ov.Type(), nv.Type())
	}
	if ov.Kind() != reflect.Struct {
		return nil, fmt.Errorf("changes: %s is not a struct", ov.Type())
	}
	t := ov.Type()
	out := []Change{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "" {
			continue
		}
		of, nf := ov.Field(i), nv.Field(i)
		if equal(of, nf) {
			continue
		}
		os, err := render(of)
		if err != nil {
			return nil, fmt.Errorf("changes: field %s: %w", name, err)
		}
		ns, err := render(nf)
		if err != nil {
			return nil, fmt.Errorf("changes: field %s: %w", name, err)
		}
		out = append(out, Change{FieldName: name, OldValue: os, NewValue: ns})
	}
	return out, nil
}

// DiffSets compares two id collections as sets. Both sides are rendered
// sorted so the output does not depend on input order.
func DiffSets(field string, oldSet, newSet []string) (string, error) {
	o, n := sortedCopy(oldSet), sortedCopy(newSet)
	list := []Change{}
	if !reflect.DeepEqual(o, n) {
		os, err := json.Marshal(o)
		if err != nil {
			return "", err
		}
		ns, err := json.Marshal(n)
		if err != nil {
			return "", err
		}
		list = append(list, Change{FieldName: field, OldValue: string(os), NewValue: string(ns)})
	}
	return Render(list)
}

// Single builds a one-entry payload.
func Single(field, oldValue, newValue string) (string, error) {
	return Render([]Change{{FieldName: field, OldValue: oldValue, NewValue: newValue}})
}

func Render(list []Change) (string, error) {
	if list == nil {
		list = []Change{}
	}
	data, err := json.Marshal(document{Changes: list})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Parse decodes a details payload.
func Parse(details string) ([]Change, error) {
	if details == "" {
		return nil, nil
	}
	var doc document
	if err := json.Unmarshal([]byte(details), &doc); err != nil {
		return nil, err
	}
	return doc.Changes, nil
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var timeType = reflect.TypeOf(time.Time{})

func equal(a, b reflect.Value) bool {
	ai, bi := indirect(a), indirect(b)
	if !ai.IsValid() || !bi.IsValid() {
		return ai.IsValid() == bi.IsValid()
	}
	if ai.Type() == timeType {
		return ai.Interface().(time.Time).Equal(bi.Interface().(time.Time))
	}
	return reflect.DeepEqual(ai.Interface(), bi.Interface())
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func render(v reflect.Value) (string, error) {
	v = indirect(v)
	if !v.IsValid() {
		return "", nil
	}
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "", nil
		}
		return t.UTC().Format(TimeLayout), nil
	}
	if v.Type().Implements(stringerType) {
		return v.Interface().(fmt.Stringer).String(), nil
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return "", nil
		}
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
