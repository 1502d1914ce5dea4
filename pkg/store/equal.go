package store

import (
	"math"
	"reflect"
)

// identical is the default distinctness check. Scalars and strings compare
// by value; maps, pointers, channels and functions by identity; slices by
// backing array and length; structs, arrays and interfaces element-wise
// under the same rules. A selector that returns a freshly built map or
// slice therefore always emits, while one that returns the same reference
// or an equal scalar is filtered.
func identical[T any](a, b T) bool {
	return identicalValue(reflect.ValueOf(&a).Elem(), reflect.ValueOf(&b).Elem())
}

func identicalValue(a, b reflect.Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Kind() {
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		return identicalValue(a.Elem(), b.Elem())
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Slice:
		if a.IsNil() != b.IsNil() {
			return false
		}
		return a.Pointer() == b.Pointer() && a.Len() == b.Len()
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !identicalValue(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !identicalValue(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Float32, reflect.Float64:
		x, y := a.Float(), b.Float()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	case reflect.Complex64, reflect.Complex128:
		return a.Complex() == b.Complex()
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.String:
		return a.String() == b.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	}
	return false
}
