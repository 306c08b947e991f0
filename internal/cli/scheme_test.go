package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeData unmarshals the data payload of a JSON CLI response.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

type schemeJSON struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version"`
	Fields  []struct {
		Key string `json:"key"`
	} `json:"fields"`
}

func (s schemeJSON) keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Key
	}
	return keys
}

func TestSchemeCommands_Lifecycle(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "scheme", "create", "Articles")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Created scheme Articles (id 1)")

	_, err = execute(t, dir, "scheme", "add-field", "1", `{"key":"title","type":"STRING","required":true}`)
	require.NoError(t, err)
	_, err = execute(t, dir, "scheme", "add-field", "1", `{"key":"views","type":"NUMBER","default":0}`)
	require.NoError(t, err)
	_, err = execute(t, dir, "scheme", "add-field", "1", `{"key":"draft","type":"BOOLEAN"}`)
	require.NoError(t, err)

	out, err = execute(t, dir, "--format", "json", "scheme", "get", "1")
	require.NoError(t, err)
	var sc schemeJSON
	decodeData(t, out, &sc)
	assert.Equal(t, "Articles", sc.Name)
	assert.Equal(t, 1, sc.Version)
	assert.Equal(t, []string{"title", "views", "draft"}, sc.keys())

	out, err = execute(t, dir, "scheme", "remove-field", "1", "draft")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed field draft from Articles (version 2)")

	_, err = execute(t, dir, "scheme", "rekey-field", "1", "views", "hits")
	require.NoError(t, err)

	out, err = execute(t, dir, "--format", "json", "scheme", "index-field", "1", "hits", "0")
	require.NoError(t, err)
	decodeData(t, out, &sc)
	assert.Equal(t, []string{"hits", "title"}, sc.keys())
	assert.Equal(t, 2, sc.Version)

	out, err = execute(t, dir, "scheme", "update-field", "1", "title", `{"key":"title","type":"STRING","rules":{"max-char":10}}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Updated field title in Articles (version 3)")

	out, err = execute(t, dir, "scheme", "rename", "1", "Posts")
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed scheme 1 to Posts")

	out, err = execute(t, dir, "scheme", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Posts (id 1, version 3)")
	assert.Contains(t, out, "default=0")

	out, err = execute(t, dir, "scheme", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Posts")
	assert.Contains(t, out, "2 field(s)")

	out, err = execute(t, dir, "--format", "json", "scheme", "history", "1")
	require.NoError(t, err)
	var history []struct {
		Kind        string `json:"kind"`
		FieldKey    string `json:"field_key"`
		FromVersion int    `json:"from_version"`
		ToVersion   int    `json:"to_version"`
	}
	decodeData(t, out, &history)
	require.Len(t, history, 3)
	assert.Equal(t, "remove-field", history[0].Kind)
	assert.Equal(t, "draft", history[0].FieldKey)
	assert.Equal(t, "rekey-field", history[1].Kind)
	assert.Equal(t, 2, history[1].ToVersion)
	assert.Equal(t, "update-field", history[2].Kind)
	assert.Equal(t, 3, history[2].ToVersion)

	out, err = execute(t, dir, "scheme", "remove", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed scheme 1")

	out, err = execute(t, dir, "scheme", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No schemes.")
}

func TestSchemeCommands_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "scheme", "create", "Articles")
	require.NoError(t, err)
	_, err = execute(t, dir, "scheme", "add-field", "1", `{"key":"title","type":"STRING"}`)
	require.NoError(t, err)

	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{"missing scheme", []string{"scheme", "get", "9"}, errorCodeNotFound, ExitFailure},
		{"bad id", []string{"scheme", "get", "abc"}, errorCodeInput, ExitCommandError},
		{"zero id", []string{"scheme", "get", "0"}, errorCodeInput, ExitCommandError},
		{"duplicate key", []string{"scheme", "add-field", "1", `{"key":"title","type":"STRING"}`}, errorCodeConflict, ExitFailure},
		{"unknown attribute", []string{"scheme", "add-field", "1", `{"key":"x","type":"STRING","colour":"red"}`}, errorCodeInput, ExitCommandError},
		{"bad type", []string{"scheme", "add-field", "1", `{"key":"x","type":"DATE"}`}, errorCodeValidation, ExitFailure},
		{"missing field", []string{"scheme", "remove-field", "1", "body"}, errorCodeNotFound, ExitFailure},
		{"bad index", []string{"scheme", "index-field", "1", "title", "first"}, errorCodeInput, ExitCommandError},
		{"empty name", []string{"scheme", "rename", "1", " "}, errorCodeValidation, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, dir, append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestSchemeCommands_WrongArgCount(t *testing.T) {
	_, err := execute(t, t.TempDir(), "scheme", "rename", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg")
}

func TestSchemeHistory_Text(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "scheme", "create", "Articles")
	require.NoError(t, err)

	out, err := execute(t, dir, "scheme", "history", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "No migrations for scheme 1.")

	_, err = execute(t, dir, "scheme", "add-field", "1", `{"key":"a","type":"STRING"}`)
	require.NoError(t, err)
	_, err = execute(t, dir, "entry", "create", "1", `{"a":"x"}`)
	require.NoError(t, err)
	_, err = execute(t, dir, "scheme", "remove-field", "1", "a")
	require.NoError(t, err)

	out, err = execute(t, dir, "scheme", "history", "1")
	require.NoError(t, err)
	line := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(line, "v1 -> v2"), line)
	assert.Contains(t, line, "remove-field")
	assert.Contains(t, line, "1 entry")
}
