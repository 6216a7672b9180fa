package util

import (
	"fmt"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"math"
	"os"
	"reflect"
	"testing"
)

func AssertEqual(t *testing.T, expected any, actual any) {
	if !reflect.DeepEqual(expected, actual) {
		sigolo.Errorb(1, "Expect to be equal.\nExpected: %+v\n----------\nActual  : %+v\n", expected, actual)
		t.Fail()
	}
}

func AssertApprox[T float32 | float64](t *testing.T, expected T, actual T, accuracy T) {
	if math.Abs(float64(expected-actual)) > float64(accuracy) {
		sigolo.Errorb(1, "Expect %f to be approx. %f (accuracy %f)", actual, expected, accuracy)
		t.Fail()
	}
}

func AssertNil(t *testing.T, value any) {
	if value != nil && !reflect.ValueOf(value).IsNil() {
		sigolo.Errorb(1, "Expect to be 'nil' but was: %#v", value)
		t.Fail()
	}
}

func AssertNotNil(t *testing.T, value any) {
	if value == nil || reflect.ValueOf(value).IsNil() {
		sigolo.Errorb(1, "Expect NOT to be 'nil' but was: %#v", value)
		t.Fail()
	}
}

// AssertErrorIs checks that the error wraps the expected sentinel error.
func AssertErrorIs(t *testing.T, expected error, err error) {
	if !errors.Is(err, expected) {
		sigolo.Errorb(1, "Expected error to be '%v' but was: %+v", expected, err)
		t.Fail()
	}
}

func AssertTrue(t *testing.T, b bool) {
	if !b {
		sigolo.Errorb(1, "Expected true but got false")
		t.Fail()
	}
}

func AssertFalse(t *testing.T, b bool) {
	if b {
		sigolo.Errorb(1, "Expected false but got true")
		t.Fail()
	}
}

func AssertFileExists(t *testing.T, filename string) {
	if _, err := os.Stat(filename); err != nil {
		sigolo.Errorb(1, "Expected file %s to exist: %v", filename, err)
		t.Fail()
	}
}

func AssertFileNotExists(t *testing.T, filename string) {
	if _, err := os.Stat(filename); !errors.Is(err, os.ErrNotExist) {
		sigolo.Errorb(1, "Expected file %s not to exist", filename)
		t.Fail()
	}
}

// Must fails the test immediately when the error is not nil. It's meant for setup steps of a test.
func Must(t *testing.T, err error) {
	if err != nil {
		t.Fatal(fmt.Sprintf("Unexpected error: %+v", err))
	}
}
