package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/validate"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "unknown section \"pricing\"", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "unknown section \"pricing\"", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"section": "contact", "key": "phone"}
	err := formatter.Error("INVALID_STATE", "already published", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Published 3 item(s)")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Published 3 item(s)")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("NOT_FOUND", "unknown section \"pricing\"", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [NOT_FOUND]")
	assert.Contains(t, buf.String(), "unknown section")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"section": "contact"}
	err := formatter.Error("NOT_FOUND", "unknown key", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [NOT_FOUND]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Opening %s", "site.db")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Opening site.db")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "VALIDATION_FAILED",
		Message: "1 validation error(s)",
		Details: []string{"Phone is required"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION_FAILED", decoded.Code)
	assert.Equal(t, "1 validation error(s)", decoded.Message)
}

func TestOutputFormatter_TextErrorListsViolations(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	violations := []validate.Violation{
		{Path: "items[0].quote", Message: "Item 1: Quote is required"},
		{Path: "items[1].name", Message: "Item 2: Name is required"},
	}
	require.NoError(t, formatter.Error("VALIDATION_FAILED", "2 validation error(s)", violations))

	out := buf.String()
	assert.Contains(t, out, "Error [VALIDATION_FAILED]")
	assert.Contains(t, out, "  - Item 1: Quote is required\n")
	assert.Contains(t, out, "  - Item 2: Name is required\n")
}

func TestOutputFormatter_Render(t *testing.T) {
	called := false
	text := func(w io.Writer) {
		called = true
		_, _ = w.Write([]byte("rendered\n"))
	}

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.Render(map[string]int{"n": 1}, text))
	assert.True(t, called)
	assert.Equal(t, "rendered\n", buf.String())

	called = false
	buf.Reset()
	formatter.Format = "json"
	require.NoError(t, formatter.Render(map[string]int{"n": 1}, text))
	assert.False(t, called)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"n": float64(1)}, resp.Data)
}

func TestOutputFormatter_Fail(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{
			name: "validation",
			err: &engine.Error{
				Code:       engine.ErrCodeValidation,
				Message:    "1 validation error(s)",
				Violations: []validate.Violation{{Path: "phone", Message: "Phone is required"}},
			},
			wantCode: "VALIDATION_FAILED",
			wantExit: ExitFailure,
		},
		{
			name:     "unauthorized",
			err:      &engine.Error{Code: engine.ErrCodeUnauthorized, Message: "editor role required"},
			wantCode: "UNAUTHORIZED",
			wantExit: ExitFailure,
		},
		{
			name:     "store",
			err:      &engine.Error{Code: engine.ErrCodeStore, Message: "database is locked"},
			wantCode: "STORE_FAILURE",
			wantExit: ExitCommandError,
		},
		{
			name:     "other",
			err:      errors.New("boom"),
			wantCode: "E_COMMAND",
			wantExit: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad config")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	wrapped := WrapExitError(ExitFailure, "rejected", errors.New("cause"))
	assert.Equal(t, "rejected: cause", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
