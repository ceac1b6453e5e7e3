package root

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bossweek/internal/services"
)

func cliEnv(t *testing.T) func(args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"PORT", "WEEK_ANCHOR", "AMQP_URL", "NEXON_API_KEY", "GOOGLE_SPREADSHEET_ID", "TRUSTED_PROXIES"} {
		t.Setenv(key, "")
	}
	t.Setenv("PROJECTION_PATH", filepath.Join(dir, "stats.parquet"))
	db := filepath.Join(dir, "ledger.db")

	return func(args ...string) (string, error) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--db", db, "--log-level", "error"}, args...))
		err := cmd.Execute()
		return out.String(), err
	}
}

func TestCLI_WeeklyFlow(t *testing.T) {
	run := cliEnv(t)

	out, err := run("boss", "add", "Lucid", "1,500,000")
	require.NoError(t, err)
	assert.Contains(t, out, "Lucid added")

	_, err = run("boss", "add", "Will", "2000000")
	require.NoError(t, err)

	out, err = run("boss", "add", "Lucid", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "already in the catalog")

	out, err = run("char", "add", "라라", "--level", "275")
	require.NoError(t, err)
	assert.Contains(t, out, "라라 added")
	assert.NotContains(t, out, "profile refresh")

	out, err = run("check", "라라", "Lucid")
	require.NoError(t, err)
	assert.Contains(t, out, "라라 Lucid")

	out, err = run("week", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "라라")
	assert.Contains(t, out, "1/2")

	out, err = run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Report")
	assert.Contains(t, out, "라라")

	out, err = run("boss", "price", "Lucid", "1,000,000", "--note", "patch")
	require.NoError(t, err)
	assert.Contains(t, out, "records repriced")

	out, err = run("boss", "history", "Lucid")
	require.NoError(t, err)
	assert.Contains(t, out, "patch")

	out, err = run("char", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Lv.275")

	out, err = run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Characters:")
	assert.Contains(t, out, "Records:")

	out, err = run("resync")
	require.NoError(t, err)
	assert.Contains(t, out, "projection rebuilt")

	out, err = run("stats", "--weeks")
	require.NoError(t, err)
	assert.Contains(t, out, "Total:")
}

func TestCLI_Errors(t *testing.T) {
	run := cliEnv(t)

	_, err := run("char", "add", "라라")
	require.NoError(t, err)

	_, err = run("check", "라라", "Nope")
	assert.Error(t, err)

	_, err = run("boss", "add", "Lucid", "-5")
	assert.Error(t, err)

	_, err = run("check", "라라", "Lucid", "--done", "--undo")
	assert.Error(t, err)

	_, err = run("char", "refresh", "라라")
	assert.ErrorIs(t, err, services.ErrRefreshDisabled)

	_, err = run("export")
	assert.ErrorIs(t, err, services.ErrExportDisabled)

	_, err = run("week", "show", "not-a-week")
	assert.Error(t, err)
}

func TestCLI_Import(t *testing.T) {
	run := cliEnv(t)

	doc := `{
		"boss_list": [{"text": "Lucid", "value": 100}, {"text": "Will", "value": "1,000"}],
		"characters": {"라라": {"level": 280, "job": "Bishop"}},
		"weeks": {"2025-36": {"라라": {"bosses": [{"text": "Lucid", "value": 100, "checked": true}]}}}
	}`
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := run("import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported")
	assert.Contains(t, out, "Records: 1")

	out, err = run("week", "show", "2025-36")
	require.NoError(t, err)
	assert.Contains(t, out, "라라")
	assert.Contains(t, out, "1/1")
}

func TestCLI_Version(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "bossweek v"+Version+"\n", out.String())
}
