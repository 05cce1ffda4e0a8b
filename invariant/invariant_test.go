package invariant_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/builtwithtofu/binfmt/invariant"
)

// expectViolation runs fn and fails the test unless it panics with a
// message containing every fragment.
func expectViolation(t *testing.T, fn func(), fragments ...string) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a contract violation panic")
		}
		msg := fmt.Sprintf("%v", r)
		for _, fragment := range fragments {
			if !strings.Contains(msg, fragment) {
				t.Errorf("expected %q in violation message, got: %s", fragment, msg)
			}
		}
	}()
	fn()
}

func TestPreconditionPass(t *testing.T) {
	data := []byte{0x01, 0x00}
	invariant.Precondition(len(data) > 0, "input must not be empty")
	invariant.Precondition(true, "always holds")
}

func TestPreconditionFail(t *testing.T) {
	expectViolation(t, func() {
		invariant.Precondition(false, "grammar must not be nil")
	}, "PRECONDITION VIOLATION", "grammar must not be nil", "at ")
}

func TestPostconditionFail(t *testing.T) {
	expectViolation(t, func() {
		invariant.Postcondition(false, "record size must be positive")
	}, "POSTCONDITION VIOLATION", "record size must be positive")
}

func TestInvariantPass(t *testing.T) {
	offset := int64(4)
	prev := int64(0)
	invariant.Invariant(offset > prev, "parse offset must advance")
}

func TestInvariantFail(t *testing.T) {
	expectViolation(t, func() {
		invariant.Invariant(false, "spans must tile the record")
	}, "INVARIANT VIOLATION", "spans must tile the record")
}

func TestNotNilPass(t *testing.T) {
	invariant.NotNil("value", "value")
	invariant.NotNil([]byte{0x00}, "raw bytes")
	invariant.NotNil(map[string]int{"n": 3}, "scope")
}

func TestNotNilFailOnUntypedNil(t *testing.T) {
	expectViolation(t, func() {
		invariant.NotNil(nil, "reader")
	}, "PRECONDITION VIOLATION", "reader must not be nil")
}

func TestNotNilFailOnTypedNil(t *testing.T) {
	type record struct{}
	var rec *record
	expectViolation(t, func() {
		invariant.NotNil(rec, "record")
	}, "record must not be nil")
}

func TestInRangePass(t *testing.T) {
	invariant.InRange(0, 0, 10, "field index")
	invariant.InRange(10, 0, 10, "field index")
}

func TestInRangeFail(t *testing.T) {
	expectViolation(t, func() {
		invariant.InRange(11, 0, 10, "field index")
	}, "field index must be in range [0, 10], got 11")
}

func TestPositivePass(t *testing.T) {
	invariant.Positive(1, "record count")
}

func TestPositiveFail(t *testing.T) {
	expectViolation(t, func() {
		invariant.Positive(0, "record count")
	}, "record count must be positive, got 0")
}

func TestExpectNoErrorPass(t *testing.T) {
	invariant.ExpectNoError(nil, "serialize grammar")
}

func TestExpectNoErrorFail(t *testing.T) {
	err := fmt.Errorf("yaml: unexpected node")
	expectViolation(t, func() {
		invariant.ExpectNoError(err, "serialize grammar")
	}, "serialize grammar must not fail", "yaml: unexpected node")
}

func TestFormattedMessages(t *testing.T) {
	expectViolation(t, func() {
		invariant.Precondition(false, "offset %d exceeds stop offset %d", 12, 9)
	}, "offset 12 exceeds stop offset 9")
}
