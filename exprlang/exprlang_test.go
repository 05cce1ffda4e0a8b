package exprlang_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtwithtofu/binfmt/exprlang"
)

func TestEvalArithmetic(t *testing.T) {
	cases := []struct {
		name string
		expr string
		ctx  exprlang.Context
		want int64
	}{
		{"simple add", "1 + 2", nil, 3},
		{"precedence", "2 + 3 * 4", nil, 14},
		{"parens", "(2 + 3) * 4", nil, 20},
		{"truncating division", "7 / 2", nil, 3},
		{"identifier", "total - 4", exprlang.Context{"total": 10}, 6},
		{"zero length", "n - n", exprlang.Context{"n": 5}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := exprlang.Eval(tc.expr, tc.ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNoUnaryMinus(t *testing.T) {
	_, err := exprlang.Eval("-7 / 2", nil)
	require.Error(t, err)
}

func TestDivisionByZero(t *testing.T) {
	_, err := exprlang.Eval("1 / 0", nil)
	require.Error(t, err)
	var exprErr *exprlang.Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, exprlang.ErrDivisionByZero, exprErr.Kind)
}

func TestUnknownIdentifier(t *testing.T) {
	_, err := exprlang.Eval("missing + 1", exprlang.Context{})
	require.Error(t, err)
	var exprErr *exprlang.Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, exprlang.ErrUnknownIdentifier, exprErr.Kind)
	assert.Equal(t, "missing", exprErr.Identifier)
}

func TestNegativeResult(t *testing.T) {
	_, err := exprlang.Eval("n - total", exprlang.Context{"n": 2, "total": 10})
	require.Error(t, err)
	var exprErr *exprlang.Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, exprlang.ErrInvalidResult, exprErr.Kind)
}

func TestZeroResultAllowed(t *testing.T) {
	got, err := exprlang.Eval("total - total", exprlang.Context{"total": 4})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestValidateParseOnly(t *testing.T) {
	require.NoError(t, exprlang.Validate("a + b * (c - 1)"))
	require.Error(t, exprlang.Validate("a + * b"))
	require.Error(t, exprlang.Validate("(a + b"))
	require.Error(t, exprlang.Validate(""))
}

func TestIdentifiers(t *testing.T) {
	ids, err := exprlang.Identifiers("total - header.length + 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"total", "header.length"}, ids)
}

func TestIsLiteralInt(t *testing.T) {
	v, ok := exprlang.IsLiteralInt(" 42 ")
	require.True(t, ok)
	assert.Equal(t, int64(42), v)

	_, ok = exprlang.IsLiteralInt("a+1")
	require.False(t, ok)
}
