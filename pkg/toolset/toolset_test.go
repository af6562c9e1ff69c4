package toolset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinSetsSupported(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{SetAgriculture, SetEcommerce, SetGeneral}, r.Supported())

	for _, name := range r.Supported() {
		assert.True(t, r.IsSupported(name))
		set, ok := r.Get(name)
		require.True(t, ok)
		assert.NotEmpty(t, set.Tools())
	}

	assert.False(t, r.IsSupported("finance"))
	_, ok := r.Get("finance")
	assert.False(t, ok)
}

func TestSetToolLookup(t *testing.T) {
	r := NewRegistry()
	set, ok := r.Get(SetEcommerce)
	require.True(t, ok)

	tool, ok := set.Tool("search_products")
	require.True(t, ok)
	assert.Equal(t, "search_products", tool.Name)

	_, ok = set.Tool("calculator")
	assert.False(t, ok)
}

func TestCalculatorHandler(t *testing.T) {
	r := NewRegistry()
	set, _ := r.Get(SetGeneral)
	calc, ok := set.Tool("calculator")
	require.True(t, ok)

	tests := []struct {
		op   string
		a, b float64
		want float64
	}{
		{"+", 2, 2, 4},
		{"-", 10, 4, 6},
		{"*", 3, 5, 15},
		{"/", 9, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			out, err := calc.Handler(context.Background(), map[string]interface{}{
				"a": tt.a, "op": tt.op, "b": tt.b,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	_, err := calc.Handler(context.Background(), map[string]interface{}{
		"a": 1.0, "op": "/", "b": 0.0,
	})
	assert.Error(t, err)
}

func TestToolHandlersAreDeterministic(t *testing.T) {
	r := NewRegistry()
	set, _ := r.Get(SetEcommerce)
	status, ok := set.Tool("get_order_status")
	require.True(t, ok)

	args := map[string]interface{}{"order_id": "ORD-42"}
	first, err := status.Handler(context.Background(), args)
	require.NoError(t, err)
	second, err := status.Handler(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolsets.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReloadAppliesManifest(t *testing.T) {
	r := NewRegistry()

	path := writeManifest(t, `{
		"tool_sets": [
			{
				"name": "general",
				"tools": [
					{"name": "current_time", "disabled": true},
					{"name": "calculator", "description": "Customized calculator"}
				]
			}
		]
	}`)

	require.NoError(t, r.Reload(path))

	set, _ := r.Get(SetGeneral)
	_, ok := set.Tool("current_time")
	assert.False(t, ok)

	calc, ok := set.Tool("calculator")
	require.True(t, ok)
	assert.Equal(t, "Customized calculator", calc.Description)

	// Reload with no manifest restores the builtins.
	require.NoError(t, r.Reload(""))
	set, _ = r.Get(SetGeneral)
	_, ok = set.Tool("current_time")
	assert.True(t, ok)
	calc, _ = set.Tool("calculator")
	assert.NotEqual(t, "Customized calculator", calc.Description)
}

func TestReloadRejectsInvalidManifest(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{{{`},
		{"missing tool_sets", `{"sets": []}`},
		{"unnamed set", `{"tool_sets": [{"tools": []}]}`},
		{"unknown set", `{"tool_sets": [{"name": "finance"}]}`},
		{"unknown tool", `{"tool_sets": [{"name": "general", "tools": [{"name": "no_such"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, tt.content)
			assert.Error(t, r.Reload(path))
		})
	}

	// A failed reload leaves the registry untouched.
	set, _ := r.Get(SetGeneral)
	_, ok := set.Tool("calculator")
	assert.True(t, ok)
}

func TestReloadMissingFile(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Reload(filepath.Join(t.TempDir(), "absent.json")))
}
