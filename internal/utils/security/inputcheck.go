package security

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Limits bounds user supplied strings: flag values, arguments and the
// string fields of a decoded packaging file.
type Limits struct {
	MaxString int
	MaxPath   int
	AllowNL   bool
	AllowTab  bool
}

func DefaultLimits() Limits {
	return Limits{
		MaxString: 4096,
		MaxPath:   4096,
		AllowNL:   true,
		AllowTab:  true,
	}
}

func ValidateString(name, s string, lim Limits) error {
	return validate(name, s, lim.MaxString, lim)
}

func ValidatePath(name, s string, lim Limits) error {
	return validate(name, s, lim.MaxPath, lim)
}

func validate(name, s string, max int, lim Limits) error {
	if s == "" {
		return nil
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s: invalid UTF-8", name)
	}
	if strings.ContainsRune(s, '\x00') {
		return fmt.Errorf("%s: contains NUL byte", name)
	}
	if n := utf8.RuneCountInString(s); n > max {
		return fmt.Errorf("%s: too long (%d > %d)", name, n, max)
	}
	for _, r := range s {
		if (r == '\n' && lim.AllowNL) || (r == '\t' && lim.AllowTab) {
			continue
		}
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%s: contains non-printable/control runes", name)
		}
	}
	return nil
}

// isPathName treats names mentioning paths, files or directories as paths.
func isPathName(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"path", "file", "dir"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func validateNamed(name, s string, lim Limits) error {
	if isPathName(name) {
		return ValidatePath(name, s, lim)
	}
	return ValidateString(name, s, lim)
}

// ValidateStructStrings walks every string reachable from obj.
func ValidateStructStrings(obj any, lim Limits) error {
	return walkValue(reflect.ValueOf(obj), "config", lim, map[uintptr]bool{})
}

func walkValue(v reflect.Value, path string, lim Limits, seen map[uintptr]bool) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return walkValue(v.Elem(), path, lim, seen)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walkValue(v.Elem(), path, lim, seen)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !v.Field(i).CanInterface() {
				continue
			}
			if err := walkValue(v.Field(i), path+"."+t.Field(i).Name, lim, seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			if err := walkValue(v.MapIndex(k), path+"["+fmt.Sprint(k.Interface())+"]", lim, seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := walkValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i), lim, seen); err != nil {
				return err
			}
		}
	case reflect.String:
		return validateNamed(path, v.String(), lim)
	}
	return nil
}

// AttachRecursive installs argument and flag validation as a persistent
// pre-run hook on root and every sub-command, chaining existing hooks.
func AttachRecursive(root *cobra.Command, lim Limits) {
	attach(root, lim)
	for _, c := range root.Commands() {
		AttachRecursive(c, lim)
	}
}

func attach(cmd *cobra.Command, lim Limits) {
	prev := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := validateFlagsAndArgs(c, args, lim); err != nil {
			return err
		}
		if prev != nil {
			return prev(c, args)
		}
		return nil
	}
}

func validateFlagsAndArgs(cmd *cobra.Command, args []string, lim Limits) error {
	for i, a := range args {
		if err := ValidateString(fmt.Sprintf("arg[%d]", i), a, lim); err != nil {
			return err
		}
	}

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil {
			return
		}
		name := fmt.Sprintf("flag --%s", f.Name)

		var values []string
		switch f.Value.Type() {
		case "string":
			values = []string{f.Value.String()}
		case "stringSlice", "stringArray":
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				values = sv.GetSlice()
			}
		default:
			return
		}
		for i, val := range values {
			label := name
			if len(values) > 1 {
				label = fmt.Sprintf("%s[%d]", name, i)
			}
			if err := validateNamed(label, val, lim); err != nil {
				firstErr = err
				return
			}
		}
	})
	return firstErr
}
