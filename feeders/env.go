package feeders

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// ErrEnvEmptyPrefixAndSuffix indicates that both prefix and suffix are empty.
var ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")

// AffixedEnvFeeder reads environment variables named PREFIX_<env tag>_SUFFIX.
// Slice fields take comma separated values.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string

	lookup func(string) (string, bool)
}

// NewAffixedEnvFeeder creates an AffixedEnvFeeder with the specified prefix and suffix.
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix, lookup: os.LookupEnv}
}

// WithLookup returns a copy of the feeder reading variables through fn.
func (f AffixedEnvFeeder) WithLookup(fn func(string) (string, bool)) AffixedEnvFeeder {
	f.lookup = fn
	return f
}

// Feed reads environment variables and populates the provided structure.
func (f AffixedEnvFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	if f.lookup == nil {
		f.lookup = os.LookupEnv
	}
	return f.processStructFields(reflect.ValueOf(structure).Elem())
}

func (f AffixedEnvFeeder) processStructFields(rv reflect.Value) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if err := f.processField(field, &fieldType); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func (f AffixedEnvFeeder) processField(field reflect.Value, fieldType *reflect.StructField) error {
	switch {
	case field.Kind() == reflect.Struct && field.Type() != durationType:
		return f.processStructFields(field)
	case field.Kind() == reflect.Pointer:
		if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			return f.processStructFields(field.Elem())
		}
		return nil
	}

	envTag, exists := fieldType.Tag.Lookup("env")
	if !exists {
		return nil
	}
	if value, ok := f.lookup(f.envName(envTag)); ok && value != "" {
		return setFieldFromString(field, value)
	}
	return nil
}

func (f AffixedEnvFeeder) envName(tag string) string {
	name := strings.ToUpper(tag)
	if f.Prefix != "" {
		name = strings.ToUpper(f.Prefix) + "_" + name
	}
	if f.Suffix != "" {
		name = name + "_" + strings.ToUpper(f.Suffix)
	}
	return name
}

// setFieldFromString converts and sets a field value from its text form.
func setFieldFromString(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(strValue)
		if err != nil {
			return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
		}
		field.SetInt(int64(d))
		return nil
	}

	if field.Kind() == reflect.Slice {
		parts := strings.Split(strValue, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := setFieldFromString(elem, part); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(convertedValue).Convert(field.Type()))
	return nil
}
