// Package assert merges gotest.tools and testify assertions behind one import. Error assertions
// print the full eris stack of the failing error so a failed test points at where the error was
// wrapped, not only where it surfaced.
package assert

import (
	"time"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/rotisserie/eris"
	testify "github.com/stretchr/testify/assert"
	gotest "gotest.tools/v3/assert"
)

type helperT interface {
	Helper()
}

func helper(t any) {
	if ht, ok := t.(helperT); ok {
		ht.Helper()
	}
}

func withStack(err error, msgAndArgs []any) []any {
	if err == nil {
		return msgAndArgs
	}
	return append([]any{eris.ToString(err, true)}, msgAndArgs...)
}

// gotest.tools wrappers

func Assert(t gotest.TestingT, comparison gotest.BoolOrComparison, msgAndArgs ...any) {
	helper(t)
	gotest.Assert(t, comparison, msgAndArgs...)
}

func Check(t gotest.TestingT, comparison gotest.BoolOrComparison, msgAndArgs ...any) bool {
	helper(t)
	return gotest.Check(t, comparison, msgAndArgs...)
}

func NilError(t gotest.TestingT, err error, msgAndArgs ...any) {
	helper(t)
	gotest.NilError(t, err, withStack(err, msgAndArgs)...)
}

func Equal(t gotest.TestingT, x, y any, msgAndArgs ...any) {
	helper(t)
	gotest.Equal(t, x, y, msgAndArgs...)
}

func DeepEqual(t gotest.TestingT, x, y any, opts ...gocmp.Option) {
	helper(t)
	gotest.DeepEqual(t, x, y, opts...)
}

// ErrorContains matches substring against the whole wrap chain of err, so both the context added
// by eris.Wrap and the root cause can be asserted on.
func ErrorContains(t gotest.TestingT, err error, substring string, msgAndArgs ...any) {
	helper(t)
	gotest.ErrorContains(t, err, substring, withStack(err, msgAndArgs)...)
}

func ErrorIs(t gotest.TestingT, err error, expected error, msgAndArgs ...any) {
	helper(t)
	gotest.ErrorIs(t, eris.Cause(err), eris.Cause(expected), withStack(err, msgAndArgs)...)
}

// testify wrappers

func IsError(t testify.TestingT, err error, msgAndArgs ...any) bool {
	helper(t)
	return testify.Error(t, err, msgAndArgs...)
}

func True(t testify.TestingT, value bool, msgAndArgs ...any) bool {
	helper(t)
	return testify.True(t, value, msgAndArgs...)
}

func False(t testify.TestingT, value bool, msgAndArgs ...any) bool {
	helper(t)
	return testify.False(t, value, msgAndArgs...)
}

func Nil(t testify.TestingT, object any, msgAndArgs ...any) bool {
	helper(t)
	return testify.Nil(t, object, msgAndArgs...)
}

func NotNil(t testify.TestingT, object any, msgAndArgs ...any) bool {
	helper(t)
	return testify.NotNil(t, object, msgAndArgs...)
}

func Empty(t testify.TestingT, object any, msgAndArgs ...any) bool {
	helper(t)
	return testify.Empty(t, object, msgAndArgs...)
}

func Len(t testify.TestingT, object any, length int, msgAndArgs ...any) bool {
	helper(t)
	return testify.Len(t, object, length, msgAndArgs...)
}

func Contains(t testify.TestingT, s, contains any, msgAndArgs ...any) bool {
	helper(t)
	return testify.Contains(t, s, contains, msgAndArgs...)
}

func ElementsMatch(t testify.TestingT, listA, listB any, msgAndArgs ...any) bool {
	helper(t)
	return testify.ElementsMatch(t, listA, listB, msgAndArgs...)
}

func InDelta(t testify.TestingT, expected, actual any, delta float64, msgAndArgs ...any) bool {
	helper(t)
	return testify.InDelta(t, expected, actual, delta, msgAndArgs...)
}

func JSONEq(t testify.TestingT, expected string, actual string, msgAndArgs ...any) bool {
	helper(t)
	return testify.JSONEq(t, expected, actual, msgAndArgs...)
}

func Same(t testify.TestingT, expected, actual any, msgAndArgs ...any) bool {
	helper(t)
	return testify.Same(t, expected, actual, msgAndArgs...)
}

func NotSame(t testify.TestingT, expected, actual any, msgAndArgs ...any) bool {
	helper(t)
	return testify.NotSame(t, expected, actual, msgAndArgs...)
}

func Eventually(t testify.TestingT, condition func() bool, waitFor, tick time.Duration, msgAndArgs ...any) bool {
	helper(t)
	return testify.Eventually(t, condition, waitFor, tick, msgAndArgs...)
}
