package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFieldsShadowBuiltins(t *testing.T) {
	vars := variables{}
	vars.add("count", "max", "items")

	tests := []struct {
		source string
		env    map[string]any
		want   any
	}{
		{"count * 2", map[string]any{"count": 3}, 6},
		{"count + 1", map[string]any{"count": 0}, 1},
		{"max - count", map[string]any{"max": 10, "count": 4}, 6},
		{"len(items)", map[string]any{"items": []any{1, 2}}, 2},
		{"missing == nil", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			program, err := compile(tt.source, vars)
			require.NoError(t, err)
			got, err := program.eval(tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeclaredCollectsScenarioNames(t *testing.T) {
	sc, err := Parse([]byte(`
state: {count: 0}
selectors:
  - name: doubled
    expr: count * 2
effects:
  - name: grow
    patch: {max: payload}
steps:
  - patch_json: '{"len": 1}'
  - batch:
      - update: {min: count}
expect:
  state: {total: 0}
`))
	require.NoError(t, err)

	vars := declared(sc)
	for _, name := range []string{"count", "doubled", "max", "len", "min", "total", "state", "payload", "prev", "next"} {
		assert.Contains(t, vars, name)
	}
}
