package feeders

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/golobby/cast"
)

var durationType = reflect.TypeOf(time.Duration(0))

func checkStructure(structure any) error {
	t := reflect.TypeOf(structure)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return wrapStructureError(structure)
	}
	if reflect.ValueOf(structure).IsNil() {
		return wrapStructureError(structure)
	}
	return nil
}

// fillFromMap copies decoded values into the struct fields named by tag.
// Keys with no matching field are ignored.
func fillFromMap(structure any, data map[string]any, tag string) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	return fillStruct(reflect.ValueOf(structure).Elem(), data, tag, "")
}

func fillStruct(rv reflect.Value, data map[string]any, tag, prefix string) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		key := fieldType.Name
		if v, ok := fieldType.Tag.Lookup(tag); ok {
			key = strings.Split(v, ",")[0]
			if key == "-" {
				continue
			}
		}
		value, ok := data[key]
		if !ok {
			continue
		}

		path := prefix + fieldType.Name
		if field.Kind() == reflect.Struct && field.Type() != durationType {
			nested, ok := value.(map[string]any)
			if !ok {
				return wrapConvertError(value, field.Type().String(), path)
			}
			if err := fillStruct(field, nested, tag, path+"."); err != nil {
				return err
			}
			continue
		}
		if err := setValue(field, value, path); err != nil {
			return err
		}
	}
	return nil
}

// setValue converts a decoded value into field's type.
func setValue(field reflect.Value, value any, path string) error {
	if !field.CanSet() {
		return fmt.Errorf("%w: %s", ErrFieldCannotBeSet, path)
	}
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if field.Type() == durationType {
		switch v := value.(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrCannotConvert, path, err)
			}
			field.SetInt(int64(d))
		case float64:
			field.SetInt(int64(v))
		case int64:
			field.SetInt(v)
		default:
			return wrapConvertError(value, field.Type().String(), path)
		}
		return nil
	}

	switch field.Kind() {
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%w %s, got %T", ErrExpectedArrayForSlice, path, value)
		}
		slice := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			if err := setValue(slice.Index(i), item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil
	case reflect.Map, reflect.Struct, reflect.Pointer, reflect.Interface, reflect.Chan, reflect.Func,
		reflect.Array, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer, reflect.Invalid:
		rv := reflect.ValueOf(value)
		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
			return nil
		}
		return fmt.Errorf("%w: %s at %s", ErrUnsupportedFieldType, field.Type(), path)
	default:
		converted, err := cast.FromType(scalarString(value), field.Type())
		if err != nil {
			return wrapConvertError(value, field.Type().String(), path)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
		return nil
	}
}

// scalarString renders a decoded scalar for cast, keeping whole floats
// such as JSON numbers out of exponent notation.
func scalarString(value any) string {
	if f, ok := value.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprint(value)
}
