package value

import "reflect"

// FromGo adapts a plain Go value (the shape callers hand to
// Environment.Render) into a Value, grounded on the teacher's context.go
// getAttribute reflection fallback: maps and slices convert structurally,
// a struct or *struct converts field-by-field via reflection since template
// authors commonly pass Go structs as render context, and anything already
// a Value (or *Value) passes through unchanged.
func FromGo(x interface{}) Value {
	if x == nil {
		return Null
	}
	switch t := x.(type) {
	case Value:
		return t
	case *Value:
		return *t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case map[string]interface{}:
		d := NewDict()
		for k, v := range t {
			d.Set(k, FromGo(v))
		}
		return FromDict(d)
	case map[string]Value:
		d := NewDict()
		for k, v := range t {
			d.Set(k, v)
		}
		return FromDict(d)
	case []interface{}:
		items := make([]Value, len(t))
		for i, v := range t {
			items[i] = FromGo(v)
		}
		return ListFromSlice(items)
	case []Value:
		return ListFromSlice(t)
	}
	return fromGoReflect(reflect.ValueOf(x))
}

func fromGoReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
		return fromGoReflect(rv.Elem())
	case reflect.Struct:
		d := NewDict()
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if f.PkgPath != "" { // unexported
				continue
			}
			d.Set(f.Name, FromGo(rv.Field(i).Interface()))
		}
		return FromDict(d)
	case reflect.Map:
		d := NewDict()
		iter := rv.MapRange()
		for iter.Next() {
			d.Set(ToDisplayString(FromGo(iter.Key().Interface())), FromGo(iter.Value().Interface()))
		}
		return FromDict(d)
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromGo(rv.Index(i).Interface())
		}
		return ListFromSlice(items)
	case reflect.String:
		return String(rv.String())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int(int64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	default:
		return Null
	}
}

// GoMap adapts a map[string]interface{} render context into the
// map[string]Value VM.Globals expects.
func GoMap(vars map[string]interface{}) map[string]Value {
	out := make(map[string]Value, len(vars))
	for k, v := range vars {
		out[k] = FromGo(v)
	}
	return out
}
