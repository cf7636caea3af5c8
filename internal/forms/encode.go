package forms

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of date-valued controls.
const DateLayout = "2006-01-02"

var timeType = reflect.TypeOf(time.Time{})

// Encode builds the Control<N> map for a struct whose fields carry a
// `control:"N"` tag. A ",omitempty" option drops zero values; nil pointers
// are always dropped. time.Time values are sent as dates.
func Encode(v any) (map[string]any, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("encode controls: nil %s", rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("encode controls: want struct, got %s", rv.Kind())
	}

	out := make(map[string]any)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag, ok := sf.Tag.Lookup("control")
		if !ok || !sf.IsExported() {
			continue
		}
		numStr, opts, _ := strings.Cut(tag, ",")
		num, err := strconv.Atoi(numStr)
		if err != nil {
			return nil, fmt.Errorf("encode controls: field %s: bad control tag %q", sf.Name, tag)
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		} else if opts == "omitempty" && fv.IsZero() {
			continue
		}

		if fv.Type() == timeType {
			out[ControlID(num)] = fv.Interface().(time.Time).Format(DateLayout)
			continue
		}
		out[ControlID(num)] = fv.Interface()
	}
	return out, nil
}
