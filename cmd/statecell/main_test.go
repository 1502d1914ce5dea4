package main

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/vango-dev/statecell/internal/errors"
)

const scenarios = "../../internal/scenario/testdata/scenarios"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "statecell.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[log]\nlevel = \"error\"\n"), 0o644))

	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunPassingScenario(t *testing.T) {
	out, err := execute(t, "run", filepath.Join(scenarios, "counter.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "scenario: counter")
	assert.Contains(t, out, "PASS")
}

func TestRunFailingScenario(t *testing.T) {
	out, err := execute(t, "run", filepath.Join(scenarios, "*.yaml"))

	var se *errors.StoreError
	require.True(t, stderrors.As(err, &se), "got %v", err)
	assert.Equal(t, errors.CodeScenarioExpect, se.Code)
	assert.Contains(t, se.Detail, "1 of 3 scenarios failed")
	assert.Contains(t, out, "2 passed")
}

func TestRunJSON(t *testing.T) {
	out, err := execute(t, "run", "--json", filepath.Join(scenarios, "counter.yaml"))
	require.NoError(t, err)
	require.True(t, gjson.Valid(out))
	assert.Equal(t, "counter", gjson.Get(out, "name").String())
}

func TestRunMissingFile(t *testing.T) {
	_, err := execute(t, "run", "does-not-exist.yaml")
	var se *errors.StoreError
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, errors.CodeScenarioParse, se.Code)
}

func TestVersionShort(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}
