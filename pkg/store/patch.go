package store

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vango-dev/statecell/internal/errors"
)

// PatchJSON merges the top-level members of a JSON object into the
// snapshot. Each member is decoded into the type of the field it replaces;
// fields the patch does not name keep their values.
func (s *Store[S]) PatchJSON(patch string) error {
	if !gjson.Valid(patch) {
		return errors.New(errors.CodeInvalidJSON)
	}
	doc := gjson.Parse(patch)
	if !doc.IsObject() {
		return errors.New(errors.CodePatchNotAnObject).WithDetailf("got %s", doc.Type)
	}

	return s.commit("patch_json", func(cur S) (S, error) {
		t := reflect.TypeOf(&cur).Elem()
		if t.Kind() == reflect.Map {
			fields, err := decodeMembers(doc, func(string) (reflect.Type, error) {
				return t.Elem(), nil
			})
			if err != nil {
				return cur, err
			}
			return mergeFields(cur, fields)
		}

		st, ok := structType(t)
		if !ok {
			return cur, errors.New(errors.CodeSnapshotKind).WithDetailf("%T", cur)
		}
		fields, err := decodeMembers(doc, func(key string) (reflect.Type, error) {
			f, ok := jsonField(st, key)
			if !ok || f.Tag.Get("json") == "-" {
				return nil, errors.New(errors.CodeUnknownField).WithDetail(key)
			}
			return f.Type, nil
		})
		if err != nil {
			return cur, err
		}
		return mergeFields(cur, fields)
	})
}

// decodeMembers converts each member of the object to the type typeOf
// reports for its key. Integral numbers decode to int when that type is an
// interface.
func decodeMembers(doc gjson.Result, typeOf func(key string) (reflect.Type, error)) (map[string]any, error) {
	fields := make(map[string]any)
	var ferr error
	doc.ForEach(func(key, value gjson.Result) bool {
		elem, err := typeOf(key.String())
		if err != nil {
			ferr = err
			return false
		}
		if elem.Kind() == reflect.Interface {
			fields[key.String()] = plainValue(value)
			return true
		}
		ptr := reflect.New(elem)
		if err := json.Unmarshal([]byte(value.Raw), ptr.Interface()); err != nil {
			ferr = errors.New(errors.CodeJSONDecode).WithDetail(key.String()).Wrap(err)
			return false
		}
		fields[key.String()] = ptr.Elem().Interface()
		return true
	})
	return fields, ferr
}

func plainValue(r gjson.Result) any {
	switch {
	case r.Type == gjson.Number:
		if f := r.Float(); f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return r.Float()
	case r.IsArray():
		out := []any{}
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, plainValue(v))
			return true
		})
		return out
	case r.IsObject():
		out := map[string]any{}
		r.ForEach(func(k, v gjson.Result) bool {
			out[k.String()] = plainValue(v)
			return true
		})
		return out
	}
	return r.Value()
}

// mergeFields returns a copy of cur with the named top-level fields
// replaced. cur itself is never modified.
func mergeFields[S any](cur S, fields map[string]any) (S, error) {
	rv := reflect.ValueOf(&cur).Elem()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch rv.Kind() {
	case reflect.Struct:
		next := reflect.New(rv.Type()).Elem()
		next.Set(rv)
		if err := setFields(next, keys, fields); err != nil {
			return cur, err
		}
		return next.Interface().(S), nil

	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			break
		}
		next := reflect.New(rv.Elem().Type())
		next.Elem().Set(rv.Elem())
		if err := setFields(next.Elem(), keys, fields); err != nil {
			return cur, err
		}
		return next.Interface().(S), nil

	case reflect.Map:
		t := rv.Type()
		if t.Key().Kind() != reflect.String {
			break
		}
		next := reflect.MakeMapWithSize(t, rv.Len()+len(fields))
		iter := rv.MapRange()
		for iter.Next() {
			next.SetMapIndex(iter.Key(), iter.Value())
		}
		for _, k := range keys {
			v, err := convertValue(fields[k], t.Elem())
			if err != nil {
				return cur, err.WithDetailf("%s: %s", k, err.Detail)
			}
			next.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), v)
		}
		return next.Interface().(S), nil
	}

	return cur, errors.New(errors.CodeSnapshotKind).WithDetailf("%T", cur)
}

func setFields(target reflect.Value, keys []string, fields map[string]any) error {
	t := target.Type()
	for _, k := range keys {
		f, ok := jsonField(t, k)
		if !ok {
			return errors.New(errors.CodeUnknownField).WithDetail(k)
		}
		v, err := convertValue(fields[k], f.Type)
		if err != nil {
			return err.WithDetailf("%s: %s", k, err.Detail)
		}
		target.FieldByIndex(f.Index).Set(v)
	}
	return nil
}

func structType(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t, t.Kind() == reflect.Struct
}

// jsonField finds an exported field of t by json tag name or Go name.
func jsonField(t reflect.Type, key string) (reflect.StructField, bool) {
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" && tag == key {
			return f, true
		}
	}
	for _, f := range reflect.VisibleFields(t) {
		if f.IsExported() && !f.Anonymous && f.Name == key {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// convertValue makes v assignable to t. Numeric values convert between
// numeric kinds as long as no fraction is lost.
func convertValue(v any, t reflect.Type) (reflect.Value, *Error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, errors.New(errors.CodeFieldType).WithDetailf("cannot use nil as %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		if isFloat(rv.Kind()) && !isFloat(t.Kind()) && rv.Float() != math.Trunc(rv.Float()) {
			return reflect.Value{}, errors.New(errors.CodeFieldType).WithDetailf("cannot use %v as %s", v, t)
		}
		return rv.Convert(t), nil
	}
	return reflect.Value{}, errors.New(errors.CodeFieldType).WithDetailf("cannot use %T as %s", v, t)
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
