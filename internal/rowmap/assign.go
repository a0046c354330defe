package rowmap

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// assign stores a value read from the driver in dst, converting between the
// driver value types (int64, float64, bool, []byte, string, time.Time) and
// the field's type the way database/sql does when scanning.
func assign(dst reflect.Value, src any) error {
	if dst.CanAddr() {
		if s, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return s.Scan(src)
		}
	}
	if src == nil {
		switch dst.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			dst.SetZero()
			return nil
		}
		return fmt.Errorf("converting NULL to %s is unsupported", dst.Type())
	}
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), src); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	text, isText := asText(src)

	switch dst.Kind() {
	case reflect.String:
		switch {
		case isText:
			dst.SetString(text)
		case sv.Type() == timeType:
			dst.SetString(src.(time.Time).Format(time.RFC3339Nano))
		default:
			dst.SetString(fmt.Sprint(src))
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		switch {
		case isText:
			v, err := strconv.ParseInt(text, 10, dst.Type().Bits())
			if err != nil {
				return fmt.Errorf("converting %q to %s: %w", text, dst.Type(), err)
			}
			n = v
		case sv.CanInt():
			n = sv.Int()
		case sv.CanUint() && sv.Uint() <= 1<<63-1:
			n = int64(sv.Uint())
		default:
			return unsupported(src, dst)
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		switch {
		case isText:
			v, err := strconv.ParseUint(text, 10, dst.Type().Bits())
			if err != nil {
				return fmt.Errorf("converting %q to %s: %w", text, dst.Type(), err)
			}
			n = v
		case sv.CanInt() && sv.Int() >= 0:
			n = uint64(sv.Int())
		case sv.CanUint():
			n = sv.Uint()
		default:
			return unsupported(src, dst)
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(n)
		return nil
	case reflect.Float32, reflect.Float64:
		switch {
		case isText:
			v, err := strconv.ParseFloat(text, dst.Type().Bits())
			if err != nil {
				return fmt.Errorf("converting %q to %s: %w", text, dst.Type(), err)
			}
			dst.SetFloat(v)
		case sv.CanFloat():
			dst.SetFloat(sv.Float())
		case sv.CanInt():
			dst.SetFloat(float64(sv.Int()))
		default:
			return unsupported(src, dst)
		}
		return nil
	case reflect.Bool:
		switch {
		case isText:
			v, err := strconv.ParseBool(text)
			if err != nil {
				return fmt.Errorf("converting %q to %s: %w", text, dst.Type(), err)
			}
			dst.SetBool(v)
		case sv.CanInt() && (sv.Int() == 0 || sv.Int() == 1):
			dst.SetBool(sv.Int() == 1)
		default:
			return unsupported(src, dst)
		}
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 && isText {
			dst.SetBytes([]byte(text))
			return nil
		}
	}
	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() == dst.Kind() {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return unsupported(src, dst)
}

func asText(src any) (string, bool) {
	switch s := src.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func unsupported(src any, dst reflect.Value) error {
	return fmt.Errorf("converting %T to %s is unsupported", src, dst.Type())
}
