package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReportsPosition(t *testing.T) {
	sb := New("CoreXT")

	require.NoError(t, sb.Validate("ok.js", "var a = 1;\nfunction f() { return a; }"))

	err := sb.Validate("bad.js", "var a = 1;\nvar b = ;\n")
	require.Error(t, err)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.True(t, errors.Is(err, ErrSyntax))
	assert.Equal(t, "bad.js", scriptErr.Name)
	assert.Equal(t, 2, scriptErr.Line)
	assert.Positive(t, scriptErr.Column)
	assert.NotEmpty(t, scriptErr.Message)
	assert.Contains(t, scriptErr.Excerpt(), "var b = ;")
	assert.Contains(t, scriptErr.Excerpt(), "^")
}

func TestRunIsolatedKeepsLocalsOutOfGlobalScope(t *testing.T) {
	sb := New("CoreXT")

	acc, err := sb.RunIsolated("mod.js", "var counter = 41; counter++; exports.answer = counter;",
		Param{Name: "exports", Value: sb.Namespaces().Ensure("NS.Mod")},
		Param{Name: "root", Value: sb.Namespaces().Root()},
	)
	require.NoError(t, err)
	require.NotNil(t, acc)

	v, err := acc.Get("counter")
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	_, err = acc.Set("counter", 7)
	require.NoError(t, err)
	v, err = acc.Get("counter")
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)

	assert.True(t, sb.Runtime().Get("counter") == nil || sb.Runtime().Get("counter").Export() == nil)
	assert.EqualValues(t, 42, sb.Namespaces().Values("NS.Mod")["answer"])
}

func TestRunIsolatedEarlyReturnHasNoAccessors(t *testing.T) {
	sb := New("CoreXT")

	acc, err := sb.RunIsolated("early.js", "return 5;")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestRunIsolatedRejectsBadParamName(t *testing.T) {
	sb := New("CoreXT")

	_, err := sb.RunIsolated("x.js", "", Param{Name: "not valid"})
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestRunIsolatedWrapsExceptions(t *testing.T) {
	sb := New("CoreXT")

	_, err := sb.RunIsolated("boom.js", "throw new Error('boom');")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuntime)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunIsolatedReportsThrowPosition(t *testing.T) {
	sb := New("CoreXT")

	source := "var a = 1;\nvar b = 2;\nthrow new Error('boom');"
	_, err := sb.RunIsolated("scripts/NS.Boom.js", source)
	require.Error(t, err)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.ErrorIs(t, err, ErrRuntime)
	assert.Equal(t, 3, scriptErr.Line)
	assert.Equal(t, 7, scriptErr.Column)
	assert.Equal(t, "Error: boom", scriptErr.Message)
	assert.Equal(t, "scripts/NS.Boom.js:3:7: Error: boom", scriptErr.Error())
	assert.Equal(t, "2 | var b = 2;\n3 | throw new Error('boom');\n  |       ^", scriptErr.Excerpt())
}

func TestRunGlobalReportsThrowPosition(t *testing.T) {
	sb := New("CoreXT")

	_, err := sb.RunGlobal("global.js", "var x = 1;\nundefinedFn();")
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, 2, scriptErr.Line)
	assert.Contains(t, scriptErr.Excerpt(), "undefinedFn();")
}

func TestAccessorsRejectExpressions(t *testing.T) {
	sb := New("CoreXT")

	acc, err := sb.RunIsolated("mod.js", "var __n = 'n'; var __v = 'v'; var hits = 0;")
	require.NoError(t, err)
	require.NotNil(t, acc)

	_, err = acc.Get("hits; hits = 99")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = acc.Set("hits = 5; hits", 1)
	assert.ErrorIs(t, err, ErrInvalidName)

	v, err := acc.Get("hits")
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)

	v, err = acc.Get("__n")
	require.NoError(t, err)
	assert.Equal(t, "n", v)

	_, err = acc.Set("__v", "changed")
	require.NoError(t, err)
	v, err = acc.Get("__v")
	require.NoError(t, err)
	assert.Equal(t, "changed", v)

	global, err := sb.Global()
	require.NoError(t, err)
	_, err = global.Get("this.constructor")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRunGlobalSharesScope(t *testing.T) {
	sb := New("CoreXT")

	acc, err := sb.RunGlobal("g.js", "var shared = 'first';")
	require.NoError(t, err)

	v, err := acc.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	_, err = acc.Set("shared", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", sb.Runtime().Get("shared").Export())

	again, err := sb.Global()
	require.NoError(t, err)
	assert.Same(t, acc, again)
}

func TestNamespacesNestUnderRoot(t *testing.T) {
	sb := New("CoreXT")
	ns := sb.Namespaces()

	a := ns.Ensure("NS.Widget")
	b := ns.Ensure("CoreXT.NS.Widget")
	assert.Same(t, a, b)
	assert.Same(t, ns.Root(), ns.Ensure(""))

	_, err := sb.Runtime().RunString(`CoreXT.NS.Widget.size = 3;`)
	require.NoError(t, err)
	assert.EqualValues(t, 3, ns.Values("NS.Widget")["size"])

	_, ok := ns.Lookup("Other.Thing")
	assert.False(t, ok)
	assert.Empty(t, ns.Values("Other.Thing"))
}

func TestExcerptWithoutPosition(t *testing.T) {
	e := &ScriptError{Name: "x.js", Source: "a", Message: "m"}
	assert.Equal(t, "", e.Excerpt())
	assert.Equal(t, "x.js: m", e.Error())
}
