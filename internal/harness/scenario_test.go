package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/example"
)

const minimalScenario = `
name: minimal
description: smallest valid scenario
api:
  total_items: 1
  page_size: 5
steps:
  - expect:
      state: LoadFirstPage
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, 20*time.Millisecond, s.resetDelay)
	assert.Equal(t, DefaultStepTimeout, s.timeout)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "LoadFirstPage", s.Steps[0].Expect.State)
}

func TestParseScenario_ResolvesSteps(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: steps
description: every step kind
api: {total_items: 1, page_size: 1}
timeout: 500ms
steps:
  - dispatch: toggle:7
  - quiet: 30ms
  - wait: 10ms
`))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, s.timeout)
	assert.Equal(t, example.ToggleFavorite{ID: "7"}, s.Steps[0].action)
	assert.Equal(t, 30*time.Millisecond, s.Steps[1].pause)
	assert.Equal(t, 10*time.Millisecond, s.Steps[2].pause)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    minimalScenario + "assertion: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: d\napi: {page_size: 1}\nsteps: [{wait: 1ms}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing page size",
			yaml:    "name: n\ndescription: d\nsteps: [{wait: 1ms}]\n",
			wantErr: "api.page_size must be positive",
		},
		{
			name:    "zero fail call",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1, fail_loads: [0]}\nsteps: [{wait: 1ms}]\n",
			wantErr: "call numbers start at 1",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1}\n",
			wantErr: "steps list is required",
		},
		{
			name:    "two kinds in one step",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1}\nsteps: [{wait: 1ms, quiet: 1ms}]\n",
			wantErr: "exactly one of",
		},
		{
			name:    "bad action",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1}\nsteps: [{dispatch: jump}]\n",
			wantErr: "steps[0].dispatch",
		},
		{
			name:    "bad duration",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1}\nsteps: [{wait: soon}]\n",
			wantErr: "steps[0].wait",
		},
		{
			name:    "item without id",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1}\nsteps: [{expect: {state: ShowContent, item: {name: x}}}]\n",
			wantErr: "id is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1}\nsteps: [{wait: 1ms}]\nassertions: [{type: vibes}]\n",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "bad api method",
			yaml:    "name: n\ndescription: d\napi: {page_size: 1}\nsteps: [{wait: 1ms}]\nassertions: [{type: api_calls, method: delete}]\n",
			wantErr: "method must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_SortedByFileName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b", "a"} {
		src := "name: " + name + "\ndescription: d\napi: {page_size: 1}\nsteps: [{wait: 1ms}]\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(src), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "b", scenarios[1].Name)
}

func TestLoadScenarios_Empty(t *testing.T) {
	_, err := LoadScenarios(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}

func TestLoadScenario_NotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
