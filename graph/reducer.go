// Package graph implements a generic, typed dataflow executor. A Graph[S] is
// compiled once from a set of named nodes and edges over a state type S;
// running it steps through nodes super-step by super-step, merging each
// node's declared field updates into the shared state using per-field
// reducer rules read from the `reducer` struct tag on S.
package graph

import (
	"fmt"
	"reflect"
	"sync"
)

// ReducerKind identifies how a field's contributions are merged at a
// super-step boundary.
type ReducerKind string

const (
	// ReducerOverwrite replaces the field value; last writer wins.
	ReducerOverwrite ReducerKind = "overwrite"

	// ReducerAppend concatenates the contribution onto the existing slice.
	// The field must be a slice type, and the delta value must be assignable
	// to that slice type (a single round's contribution, itself a slice).
	ReducerAppend ReducerKind = "append"

	// ReducerMax keeps the larger of the existing and contributed value.
	// The field must be an integer kind.
	ReducerMax ReducerKind = "max"
)

// Delta is the set of field updates a node produces for one evaluation. Keys
// are Go struct field names of the state type S; values must be assignable
// (for overwrite/max) or slice-assignable (for append) to the named field.
type Delta map[string]any

// fieldReducerCache caches, per state type, the reducer kind declared for
// every field via the `reducer:"..."` struct tag. Fields without a tag
// default to ReducerOverwrite. fieldReducerMu guards it, since concurrent Run
// calls (fan-out siblings) fill it.
var (
	fieldReducerMu    sync.Mutex
	fieldReducerCache = map[reflect.Type]map[string]ReducerKind{}
)

func fieldReducers(t reflect.Type) map[string]ReducerKind {
	fieldReducerMu.Lock()
	defer fieldReducerMu.Unlock()
	if m, ok := fieldReducerCache[t]; ok {
		return m
	}
	m := map[string]ReducerKind{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		kind := ReducerKind(f.Tag.Get("reducer"))
		if kind == "" {
			kind = ReducerOverwrite
		}
		m[f.Name] = kind
	}
	fieldReducerCache[t] = m
	return m
}

// applyDelta merges delta into state according to the reducer tags declared
// on S, rejecting any key not present in allowedOutputs. It returns
// InvariantViolation if delta touches an undeclared field, an unknown field,
// or a field whose runtime value cannot be reduced with its declared kind.
func applyDelta[S any](state S, delta Delta, allowedOutputs map[string]bool, node string) (S, error) {
	v := reflect.ValueOf(&state).Elem()
	t := v.Type()
	reducers := fieldReducers(t)

	for name := range delta {
		if !allowedOutputs[name] {
			return state, &InvariantViolationError{
				Node:   node,
				Field:  name,
				Reason: "field not in node's declared output set",
			}
		}
	}

	for name, newVal := range delta {
		fv := v.FieldByName(name)
		if !fv.IsValid() {
			return state, &InvariantViolationError{Node: node, Field: name, Reason: "no such field on state type"}
		}
		kind, ok := reducers[name]
		if !ok {
			kind = ReducerOverwrite
		}
		switch kind {
		case ReducerAppend:
			if err := appendField(fv, newVal); err != nil {
				return state, &InvariantViolationError{Node: node, Field: name, Reason: err.Error()}
			}
		case ReducerMax:
			if err := maxField(fv, newVal); err != nil {
				return state, &InvariantViolationError{Node: node, Field: name, Reason: err.Error()}
			}
		default:
			nv := reflect.ValueOf(newVal)
			if !nv.Type().AssignableTo(fv.Type()) {
				return state, &InvariantViolationError{Node: node, Field: name, Reason: "value not assignable to field type"}
			}
			fv.Set(nv)
		}
	}
	return state, nil
}

func appendField(fv reflect.Value, newVal any) error {
	if fv.Kind() != reflect.Slice {
		return fmt.Errorf("append reducer requires a slice field, got %s", fv.Kind())
	}
	nv := reflect.ValueOf(newVal)
	if nv.Kind() != reflect.Slice {
		return fmt.Errorf("append reducer requires a slice contribution, got %s", nv.Kind())
	}
	if !nv.Type().Elem().AssignableTo(fv.Type().Elem()) {
		return fmt.Errorf("append contribution element type %s not assignable to %s", nv.Type().Elem(), fv.Type().Elem())
	}
	fv.Set(reflect.AppendSlice(fv, nv))
	return nil
}

func maxField(fv reflect.Value, newVal any) error {
	nv := reflect.ValueOf(newVal)
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if nv.Kind() < reflect.Int || nv.Kind() > reflect.Int64 {
			return fmt.Errorf("max reducer requires an integer contribution, got %s", nv.Kind())
		}
		if nv.Int() > fv.Int() {
			fv.SetInt(nv.Int())
		}
		return nil
	default:
		return fmt.Errorf("max reducer requires an integer field, got %s", fv.Kind())
	}
}
