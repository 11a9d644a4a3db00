package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"synced": 2}, "ignored"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"synced": float64(2)}, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Success(nil, "synced 2, 0 pending"))
	assert.Equal(t, "synced 2, 0 pending\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error(ErrCodeAuth, "invalid credentials", map[string]int{"status": 401}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAuth, resp.Error.Code)
	assert.Equal(t, "invalid credentials", resp.Error.Message)
}

func TestOutputFormatter_TextErrorDetails(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}
	require.NoError(t, f.Error(ErrCodeStorage, "disk full", "seq=3"))
	assert.Equal(t, "Error [E003]: disk full\n", buf.String())

	buf.Reset()
	f.Verbose = true
	require.NoError(t, f.Error(ErrCodeStorage, "disk full", "seq=3"))
	assert.Equal(t, "Error [E003]: disk full\nDetails: seq=3\n", buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	err := f.Fail(ExitCommandError, ErrCodeValidation, "container id is empty", nil)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Equal(t, "container id is empty", err.Error())
	assert.Contains(t, buf.String(), "Error [E006]")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit error", NewExitError(ExitCommandError, "bad"), ExitCommandError},
		{"wrapped", WrapExitError(ExitFailure, "outer", errors.New("inner")), ExitFailure},
		{"plain error", errors.New("x"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}

	assert.False(t, IsReported(errors.New("x")))
	assert.Equal(t, "outer: inner", WrapExitError(ExitFailure, "outer", errors.New("inner")).Error())
}
