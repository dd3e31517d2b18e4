package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/config"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestValidate_Valid(t *testing.T) {
	path := writeConfig(t, "api: page_size: 10\nreset_delay: \"500ms\"\n")

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "121 items, 10 per page")
	assert.Contains(t, out, "reset delay 500ms, log level INFO")
}

func TestValidate_ValidJSON(t *testing.T) {
	path := writeConfig(t, `journal: "/tmp/flowstate.db"`)

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.NotNil(t, resp.Data.Config)
	assert.Equal(t, "/tmp/flowstate.db", resp.Data.Config.Journal)
	assert.Equal(t, "2s", resp.Data.Config.Delay)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	path := writeConfig(t, "api: delay: \"soon\"\nreset_delay: \"later\"\n")

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, config.ErrCodeInvalidDuration)
	assert.Contains(t, out, "demo.cue:1:")
	assert.Contains(t, out, "demo.cue:2:")
}

func TestValidate_ErrorsJSON(t *testing.T) {
	path := writeConfig(t, `api: page_size: 0`)

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  ResponseError    `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, config.ErrCodeBuildFailed, resp.Error.Code)
}

func TestValidate_FileNotFound(t *testing.T) {
	out, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+config.ErrCodeNotFound+"]")
}

func TestValidate_RequiresPath(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
