// Package envutil updates JSON-tagged configuration structs from
// environmental variables.
package envutil

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Parse updates fields of cfg from environmental variables prefixed
// with pfx. Field names are derived from JSON tags, upper-cased with
// dashes replaced by underscores. Empty values are ignored and do not
// overwrite fields. Setting a field tagged `read-only:"true"` is an
// error.
func Parse(pfx string, cfg interface{}) error {
	tp, vv := reflect.TypeOf(cfg).Elem(), reflect.ValueOf(cfg).Elem()
	for i := 0; i < tp.NumField(); i++ {
		jv := tp.Field(i).Tag.Get("json")
		if jv == "" || jv == "-" {
			continue
		}
		jv = strings.Replace(jv, ",omitempty", "", -1)
		jv = strings.ToUpper(strings.Replace(jv, "-", "_", -1))
		env := pfx + jv
		sv := os.Getenv(env)
		if sv == "" {
			continue
		}
		if tp.Field(i).Tag.Get("read-only") == "true" { // error when read-only field is set for update
			return fmt.Errorf("'%s=%s' is 'read-only' field; should not be set", env, sv)
		}
		fieldName := tp.Field(i).Name

		switch vv.Field(i).Type().Kind() {
		case reflect.String:
			vv.Field(i).SetString(sv)

		case reflect.Bool:
			bb, err := strconv.ParseBool(sv)
			if err != nil {
				return fmt.Errorf("failed to parse %q (field name %q, environmental variable key %q, error %v)", sv, fieldName, env, err)
			}
			vv.Field(i).SetBool(bb)

		case reflect.Int, reflect.Int32, reflect.Int64:
			if vv.Field(i).Type() == reflect.TypeOf(time.Duration(0)) {
				iv, err := time.ParseDuration(sv)
				if err != nil {
					return fmt.Errorf("failed to parse %q (field name %q, environmental variable key %q, error %v)", sv, fieldName, env, err)
				}
				vv.Field(i).SetInt(int64(iv))
			} else {
				iv, err := strconv.ParseInt(sv, 10, 64)
				if err != nil {
					return fmt.Errorf("failed to parse %q (field name %q, environmental variable key %q, error %v)", sv, fieldName, env, err)
				}
				vv.Field(i).SetInt(iv)
			}

		case reflect.Uint, reflect.Uint32, reflect.Uint64:
			iv, err := strconv.ParseUint(sv, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse %q (field name %q, environmental variable key %q, error %v)", sv, fieldName, env, err)
			}
			vv.Field(i).SetUint(iv)

		case reflect.Float32, reflect.Float64:
			fv, err := strconv.ParseFloat(sv, 64)
			if err != nil {
				return fmt.Errorf("failed to parse %q (field name %q, environmental variable key %q, error %v)", sv, fieldName, env, err)
			}
			vv.Field(i).SetFloat(fv)

		case reflect.Slice:
			ss := strings.Split(sv, ",")
			if len(ss) < 1 {
				continue
			}
			switch vv.Field(i).Type().Elem().Kind() {
			case reflect.String:
				slice := reflect.MakeSlice(reflect.TypeOf([]string{}), len(ss), len(ss))
				for j := range ss {
					slice.Index(j).SetString(ss[j])
				}
				vv.Field(i).Set(slice)

			case reflect.Int:
				slice := reflect.MakeSlice(reflect.TypeOf([]int{}), len(ss), len(ss))
				for j := range ss {
					iv, err := strconv.ParseInt(strings.TrimSpace(ss[j]), 10, 64)
					if err != nil {
						return fmt.Errorf("failed to parse %q (field name %q, environmental variable key %q, error %v)", sv, fieldName, env, err)
					}
					slice.Index(j).SetInt(iv)
				}
				vv.Field(i).Set(slice)

			default:
				return fmt.Errorf("field %q not supported for %s", fieldName, vv.Field(i).Type())
			}

		default:
			return fmt.Errorf("field %q not supported for %s", fieldName, vv.Field(i).Type().Kind())
		}
	}
	return nil
}
