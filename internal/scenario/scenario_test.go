package scenario

import (
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/statecell/internal/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var se *errors.StoreError
	require.True(t, stderrors.As(err, &se), "got %v", err)
	assert.Equal(t, code, se.Code)
}

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(`
name: parse
state:
  count: 1
selectors:
  - name: count
    expr: count
  - name: vm
    view: [count]
steps:
  - patch: {count: 2}
  - flush: true
`))
	require.NoError(t, err)

	assert.Equal(t, "parse", sc.Name)
	assert.Equal(t, 1, sc.State["count"])
	require.Len(t, sc.Selectors, 2)
	assert.Equal(t, []string{"count"}, sc.Selectors[1].View)
	assert.Equal(t, "patch", sc.Steps[0].Kind())
	assert.Equal(t, "flush", sc.Steps[1].Kind())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
	}{
		{
			name: "unknown key",
			doc:  "name: x\nselectorz: []\n",
			code: errors.CodeScenarioParse,
		},
		{
			name: "selector without expr",
			doc:  "selectors:\n  - name: a\n",
			code: errors.CodeScenarioParse,
		},
		{
			name: "duplicate selector",
			doc:  "selectors:\n  - {name: a, expr: x}\n  - {name: a, expr: y}\n",
			code: errors.CodeScenarioParse,
		},
		{
			name: "forward reference",
			doc:  "selectors:\n  - {name: a, combine: [b], expr: b}\n  - {name: b, expr: x}\n",
			code: errors.CodeScenarioRef,
		},
		{
			name: "two actions",
			doc:  "steps:\n  - {flush: true, destroy: true}\n",
			code: errors.CodeScenarioParse,
		},
		{
			name: "unknown effect",
			doc:  "steps:\n  - {effect: nope}\n",
			code: errors.CodeScenarioRef,
		},
		{
			name: "unknown selector in batch",
			doc:  "steps:\n  - batch:\n      - {subscribe: nope}\n",
			code: errors.CodeScenarioRef,
		},
		{
			name: "unknown expectation",
			doc:  "expect:\n  emissions:\n    nope: [1]\n",
			code: errors.CodeScenarioRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			requireCode(t, err, tt.code)
		})
	}
}

func TestLoadAttachesLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: broken\nbogus: 1\n"), 0o644))

	_, err := Load(path)
	var se *errors.StoreError
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, errors.CodeScenarioParse, se.Code)
	require.NotNil(t, se.Location)
	assert.Equal(t, path, se.Location.File)
}

func TestLoadDefaultsNameToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unnamed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state: {}\n"), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "unnamed", sc.Name)
	assert.Equal(t, path, sc.Path())
}
