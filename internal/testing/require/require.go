// Package require provides minimal test assertion helpers, used in place of
// a third-party assertion library by this module's newer packages (grounded
// on tetratelabs/wazero/internal/testing/require, which its own newer
// backend packages use instead of testify).
package require

import (
	"fmt"
	"reflect"
	"testing"
)

// Equal fails the test if expected != actual, using reflect.DeepEqual so
// slices, structs, and pointers-to-comparable-values all work.
func Equal(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		fail(t, fmt.Sprintf("expected %#v, but was %#v", expected, actual), msgAndArgs)
	}
}

// NotEqual fails the test if expected == actual.
func NotEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if reflect.DeepEqual(expected, actual) {
		fail(t, fmt.Sprintf("expected values to differ, both were %#v", actual), msgAndArgs)
	}
}

// True fails the test if value is false.
func True(t *testing.T, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	if !value {
		fail(t, "expected true, but was false", msgAndArgs)
	}
}

// False fails the test if value is true.
func False(t *testing.T, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	if value {
		fail(t, "expected false, but was true", msgAndArgs)
	}
}

// NoError fails the test if err is non-nil.
func NoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		fail(t, fmt.Sprintf("expected no error, but was %v", err), msgAndArgs)
	}
}

// Error fails the test if err is nil.
func Error(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		fail(t, "expected an error, but was nil", msgAndArgs)
	}
}

// ErrorContains fails the test if err is nil or its message doesn't contain substr.
func ErrorContains(t *testing.T, err error, substr string, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		fail(t, fmt.Sprintf("expected error containing %q, but was nil", substr), msgAndArgs)
		return
	}
	if !contains(err.Error(), substr) {
		fail(t, fmt.Sprintf("expected error containing %q, but was %q", substr, err.Error()), msgAndArgs)
	}
}

// Nil fails the test if value is not nil.
func Nil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if !isNil(value) {
		fail(t, fmt.Sprintf("expected nil, but was %#v", value), msgAndArgs)
	}
}

// NotNil fails the test if value is nil.
func NotNil(t *testing.T, value interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if isNil(value) {
		fail(t, "expected non-nil value", msgAndArgs)
	}
}

// Len fails the test if the length of value (a slice, array, map, or string) isn't expected.
func Len(t *testing.T, value interface{}, expected int, msgAndArgs ...interface{}) {
	t.Helper()
	v := reflect.ValueOf(value)
	if v.Len() != expected {
		fail(t, fmt.Sprintf("expected length %d, but was %d", expected, v.Len()), msgAndArgs)
	}
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

func contains(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func fail(t *testing.T, message string, msgAndArgs []interface{}) {
	t.Helper()
	if len(msgAndArgs) > 0 {
		format, ok := msgAndArgs[0].(string)
		if ok {
			message = fmt.Sprintf(message+": "+format, msgAndArgs[1:]...)
		}
	}
	t.Fatal(message)
}
