package cli

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/forms"
)

var timeType = reflect.TypeOf(time.Time{})

// clearValue typed at a prompt resets an optional field.
const clearValue = "-"

// promptForm asks for every control of f in form order. f must be a pointer
// to a payload struct; current values are offered as defaults, so an empty
// answer keeps them.
func (a *App) promptForm(ctx context.Context, f models.Form) error {
	schema, ok := forms.ByKind(f.Kind())
	if !ok {
		return fmt.Errorf("unknown form kind %q", f.Kind())
	}

	rv := reflect.ValueOf(f).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag, ok := rt.Field(i).Tag.Lookup("control")
		if !ok {
			continue
		}
		num, err := strconv.Atoi(strings.SplitN(tag, ",", 2)[0])
		if err != nil {
			return fmt.Errorf("field %s: bad control tag %q", rt.Field(i).Name, tag)
		}
		ctl, ok := schema.Control(num)
		if !ok {
			return fmt.Errorf("field %s: control %d is not part of form %d", rt.Field(i).Name, num, schema.ID)
		}

		if ctl.Enum != "" {
			a.printChoices(ctx, ctl.Enum)
		}
		if err := a.promptField(rv.Field(i), ctl); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) promptField(fv reflect.Value, ctl forms.Control) error {
	prompt := ctl.Name + fieldHint(fv)
	if ctl.Required {
		prompt += " *"
	}
	if cur := formatValue(fv); cur != "" {
		prompt += " [" + cur + "]"
	}

	for {
		answer, err := getSimpleText(a.reader, prompt, a.out)
		if err != nil {
			return err
		}
		if answer == "" {
			return nil
		}
		if err := setValue(fv, answer); err != nil {
			fmt.Fprintln(a.out, "Invalid value:", err)
			continue
		}
		return nil
	}
}

// printChoices lists cached values for a control backed by a lookup list
// or a server enumeration.
func (a *App) printChoices(ctx context.Context, name string) {
	if a.lookups == nil {
		return
	}
	l, err := a.lookups.Get(ctx, name)
	if err != nil {
		l, err = a.lookups.Get(ctx, models.EnumLookupName(name))
	}
	if err != nil || len(l.Items) == 0 {
		return
	}

	choices := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		choices = append(choices, it.ID+"="+it.Name)
	}
	fmt.Fprintln(a.out, "  choices:", strings.Join(choices, ", "))
}

func fieldHint(fv reflect.Value) string {
	t := fv.Type()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return " (YYYY-MM-DD)"
	case t.Kind() == reflect.Bool:
		return " (y/n)"
	}
	return ""
}

func formatValue(fv reflect.Value) string {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return ""
		}
		fv = fv.Elem()
	}
	switch {
	case fv.Type() == timeType:
		t := fv.Interface().(time.Time)
		if t.IsZero() {
			return ""
		}
		return t.Format(forms.DateLayout)
	case fv.Kind() == reflect.Bool:
		if fv.Bool() {
			return "y"
		}
		return "n"
	case fv.Kind() == reflect.Int:
		return strconv.FormatInt(fv.Int(), 10)
	case fv.Kind() == reflect.String:
		return fv.String()
	}
	return fmt.Sprint(fv.Interface())
}

var errUnsupportedField = errors.New("unsupported field type")

func setValue(fv reflect.Value, s string) error {
	if s == clearValue {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	target := fv
	if fv.Kind() == reflect.Pointer {
		target = reflect.New(fv.Type().Elem()).Elem()
	}

	switch {
	case target.Type() == timeType:
		t, err := time.Parse(forms.DateLayout, s)
		if err != nil {
			return fmt.Errorf("expected a date like 2025-01-31")
		}
		target.Set(reflect.ValueOf(t))
	case target.Kind() == reflect.Bool:
		switch strings.ToLower(s) {
		case "y", "yes", "true":
			target.SetBool(true)
		case "n", "no", "false":
			target.SetBool(false)
		default:
			return fmt.Errorf("expected y or n")
		}
	case target.Kind() == reflect.Int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("expected a whole number")
		}
		target.SetInt(int64(n))
	case target.Kind() == reflect.String:
		target.SetString(s)
	default:
		return fmt.Errorf("%w %s", errUnsupportedField, target.Type())
	}

	if fv.Kind() == reflect.Pointer {
		fv.Set(target.Addr())
	}
	return nil
}
