package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, out *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
	return resp
}

func TestCallCommand_Health(t *testing.T) {
	root, out, dataDir := newTestRoot(t)
	root.SetArgs([]string{"call", "GET", "/health", "--format", "json"})

	require.NoError(t, root.Execute())

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"status": "ok", "schema_version": float64(2)}, resp.Data)
	assert.FileExists(t, filepath.Join(dataDir, "meet-eat.db"))
}

func TestCallCommand_Body(t *testing.T) {
	root, out, _ := newTestRoot(t)
	root.SetArgs([]string{"call", "POST", "/products", "--format", "json",
		"--body", `{"name":"Masala Tea","category":"Beverages","price_cents":2000}`})

	require.NoError(t, root.Execute())

	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "Masala Tea", data["name"])
	assert.Equal(t, float64(1), data["item_no"])
}

func TestCallCommand_BodyFromStdin(t *testing.T) {
	root, out, _ := newTestRoot(t)
	root.SetIn(strings.NewReader(`{"items":[]}`))
	root.SetArgs([]string{"call", "POST", "/bills", "--body-file", "-", "--format", "json"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "NO_VALID_ITEMS", resp.Error.Code)
	assert.Equal(t, "bill has no valid items", resp.Error.Message)
}

func TestCallCommand_InvalidBody(t *testing.T) {
	root, _, _ := newTestRoot(t)
	root.SetArgs([]string{"call", "POST", "/products", "--body", "{name:"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "body is not valid JSON")
}

func TestCallCommand_InvalidBodyJSONOutput(t *testing.T) {
	root, out, _ := newTestRoot(t)
	root.SetArgs([]string{"--format", "json", "call", "POST", "/products", "--body", "{name:"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Equal(t, "body is not valid JSON", resp.Error.Message)
	assert.Equal(t, "{name:", resp.Error.Details)
}

func TestCallCommand_BadConfig(t *testing.T) {
	root, _, _ := newTestRoot(t)
	require.NoError(t, os.WriteFile("meeteat.yaml", []byte("receipt:\n  width: 40\n"), 0644))
	root.SetArgs([]string{"call", "GET", "/health"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestBackupAndRestoreCommands(t *testing.T) {
	root, out, dataDir := newTestRoot(t)
	backupDir := filepath.Join(dataDir, "backups")

	root.SetArgs([]string{"call", "POST", "/products", "--body", `{"name":"Tea","price_cents":1500}`})
	require.NoError(t, root.Execute())

	out.Reset()
	root.SetArgs([]string{"backup", "--format", "json"})
	require.NoError(t, root.Execute())
	path := decodeResponse(t, out).Data.(map[string]any)["path"].(string)
	assert.Equal(t, backupDir, filepath.Dir(path))

	out.Reset()
	root.SetArgs([]string{"backup", "list", "--format", "json"})
	require.NoError(t, root.Execute())
	files := decodeResponse(t, out).Data.([]any)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Base(path), files[0].(map[string]any)["name"])

	root.SetArgs([]string{"call", "POST", "/products", "--body", `{"name":"Coffee","price_cents":1800}`})
	require.NoError(t, root.Execute())

	out.Reset()
	root.SetArgs([]string{"restore", backupDir, "--format", "json"})
	require.NoError(t, root.Execute())
	assert.Equal(t, path, decodeResponse(t, out).Data.(map[string]any)["restored_from"])

	out.Reset()
	root.SetArgs([]string{"call", "GET", "/products", "--format", "json"})
	require.NoError(t, root.Execute())
	assert.Len(t, decodeResponse(t, out).Data.([]any), 1)
}

func TestRestoreCommand_NoBackup(t *testing.T) {
	root, out, dataDir := newTestRoot(t)
	root.SetArgs([]string{"restore", filepath.Join(dataDir, "nothing-here"), "--format", "json"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "NO_BACKUP_FOUND", decodeResponse(t, out).Error.Code)
}

func TestRestoreCommand_BadFileName(t *testing.T) {
	root, out, dataDir := newTestRoot(t)
	root.SetArgs([]string{"restore", "--dir", dataDir, "--file", "../meet-eat.db", "--format", "json"})

	require.Error(t, root.Execute())
	assert.Equal(t, "INVALID_INPUT", decodeResponse(t, out).Error.Code)
}

func TestServeCommand(t *testing.T) {
	root, out, _ := newTestRoot(t)
	root.SetIn(strings.NewReader(strings.Join([]string{
		`{"id":1,"method":"POST","path":"/products","body":{"name":"Tea","price_cents":1500}}`,
		``,
		`{"id":2,"method":"POST","path":"/bills","body":{"items":[{"product_id":1,"product_name":"Tea","unit_price_cents":1500,"qty":2}]}}`,
		`not json`,
		`{"id":"x","method":"GET","path":"/nowhere"}`,
		`{"method":"GET","path":"/metrics","body":null}`,
	}, "\n")))
	root.SetArgs([]string{"serve", "--auto-backup=false"})

	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)

	var replies []map[string]any
	for _, line := range lines {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		replies = append(replies, m)
	}

	assert.Equal(t, float64(1), replies[0]["id"])
	assert.Equal(t, true, replies[0]["ok"])

	assert.Equal(t, float64(2), replies[1]["id"])
	assert.Equal(t, "MNE-000001", replies[1]["data"].(map[string]any)["bill_no"])

	assert.Nil(t, replies[2]["id"])
	assert.Equal(t, false, replies[2]["ok"])
	assert.Equal(t, "INVALID_INPUT", replies[2]["code"])

	assert.Equal(t, "x", replies[3]["id"])
	assert.Equal(t, "NOT_FOUND", replies[3]["code"])
	assert.Equal(t, "no route for GET /nowhere", replies[3]["error"])

	assert.Equal(t, float64(1), replies[4]["data"].(map[string]any)["bill_count"])
}

func TestServeLines_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := serveLines(ctx, nil, pr, io.Discard, log)
	assert.ErrorIs(t, err, context.Canceled)
}
