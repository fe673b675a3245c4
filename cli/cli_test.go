package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gear6io/lakeio/pkg/errors"
	"github.com/gear6io/lakeio/server/iomanager"
	"github.com/jonboulle/clockwork"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

type harness struct {
	app   *app
	clock *clockwork.FakeClock
	base  string
	dir   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC))
	dir := t.TempDir()
	return &harness{
		app:   &app{clock: clock},
		clock: clock,
		base:  filepath.Join(dir, "lake"),
		dir:   dir,
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(h.app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--base-path", h.base, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) file(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestTableCommands(t *testing.T) {
	h := newHarness(t)

	first := h.file(t, "orders.csv", "id,region,amount\n1,eu,10.5\n2,us,3\n3,eu,7.25\n")
	out, err := h.run(t, "table", "import", "silver/orders", "--csv", first, "--primary-key", "id")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 rows into silver/orders")
	assert.Contains(t, out, "row_count")
	assert.Contains(t, out, "| id | region | amount |")

	h.clock.Advance(time.Minute)
	second := h.file(t, "updates.csv", "id,region,amount\n3,eu,8\n4,us,1\n")
	out, err = h.run(t, "table", "import", "silver/orders", "--csv", second, "--primary-key", "id")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 rows into silver/orders")

	out, err = h.run(t, "table", "show", "silver/orders")
	require.NoError(t, err)
	assert.Contains(t, out, "4 rows")

	out, err = h.run(t, "table", "show", "silver/orders", "--where", "region=us", "--columns", "id")
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows")
	assert.NotContains(t, out, "amount")

	_, err = h.run(t, "table", "show", "silver/orders", "--where", "region")
	assert.True(t, errors.HasCode(err, errors.CommonInvalidInput))

	out, err = h.run(t, "table", "history", "silver/orders")
	require.NoError(t, err)
	assert.Contains(t, out, "WRITE")
	assert.Contains(t, out, "MERGE")
	assert.Contains(t, out, "2024-05-01T12:31:00Z")

	_, err = h.run(t, "table", "show", "silver/missing")
	assert.Error(t, err)

	_, err = h.run(t, "table", "import", "silver/orders", "--csv", filepath.Join(h.dir, "nope.csv"))
	assert.True(t, errors.HasCode(err, errors.CommonNotFound))

	_, err = h.run(t, "table", "import", "silver/orders")
	assert.Error(t, err, "--csv is required")
}

func TestTableImportPartitioned(t *testing.T) {
	h := newHarness(t)

	data := h.file(t, "plays.csv", "id,region\n1,eu\n2,us\n")
	_, err := h.run(t, "table", "import", "gold/plays", "--csv", data, "--partition-col", "region")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(h.base, "gold", "plays", "region=eu"))
	assert.DirExists(t, filepath.Join(h.base, "gold", "plays", "region=us"))

	_, err = h.run(t, "table", "import", "gold/plays", "--csv", data, "--partition-col", "nope")
	assert.Error(t, err)
}

func TestJSONCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "json", "write", "bronze/plays", "--partition", "2024-05-01", "--text", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("bronze", "plays", "2024_05_01", "20240501_1230.json"))

	h.clock.Advance(time.Minute)
	payload := h.file(t, "payload.json", `{"plays": 3, "artist": "x"}`)
	_, err = h.run(t, "json", "write", "bronze/plays", "--partition", "2024-04-30,2024-05-01", "--file", payload)
	require.NoError(t, err)

	out, err = h.run(t, "json", "read", "bronze/plays", "--partition", "2024-05-01")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, `"plays": 3`)
	assert.Contains(t, out, "2 entries")

	_, err = h.run(t, "json", "write", "bronze/plays", "--partition", "p", "--text", "a", "--file", payload)
	assert.Error(t, err)

	notObject := h.file(t, "list.json", `[1, 2]`)
	_, err = h.run(t, "json", "write", "bronze/plays", "--partition", "p", "--file", notObject)
	assert.True(t, errors.HasCode(err, errors.CommonInvalidInput))

	_, err = h.run(t, "json", "write", "bronze/plays", "--text", "no partition")
	assert.Error(t, err)

	_, err = h.run(t, "json", "read", "bronze/plays", "--partition", "2023-01-01")
	assert.True(t, errors.HasCode(err, iomanager.IOManagerDirectoryNotFound))
}

func TestMaintainCommand(t *testing.T) {
	h := newHarness(t)

	data := h.file(t, "orders.csv", "id\n1\n2\n")
	for i := 0; i < 2; i++ {
		_, err := h.run(t, "table", "import", "silver/orders", "--csv", data)
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}
	_, err := h.run(t, "table", "import", "bronze/raw", "--csv", data)
	require.NoError(t, err)

	h.clock.Advance(200 * time.Hour)

	out, err := h.run(t, "maintain", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")
	assert.NotContains(t, out, "bronze")

	out, err = h.run(t, "maintain")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("silver", "orders"))
	assert.Contains(t, out, "Maintained 1 tables")

	out, err = h.run(t, "maintain", "--prefix", "platinum")
	require.NoError(t, err)
	assert.Contains(t, out, "No tables match")

	_, err = h.run(t, "maintain", "--key", "gold/missing", "--prefix", "gold")
	assert.True(t, errors.HasCode(err, MaintainFailed))
}

func TestQueryCommand(t *testing.T) {
	h := newHarness(t)

	data := h.file(t, "orders.csv", "id,region\n1,eu\n2,us\n3,eu\n")
	_, err := h.run(t, "table", "import", "silver/orders", "--csv", data)
	require.NoError(t, err)

	out, err := h.run(t, "query", "silver/orders", "SELECT region, count(*) AS n FROM t GROUP BY region ORDER BY region", "--timing")
	require.NoError(t, err)
	assert.Contains(t, out, "region")
	assert.Contains(t, out, "eu")
	assert.Contains(t, out, "2 rows in")

	_, err = h.run(t, "query", "silver/orders", "DROP VIEW t")
	assert.Error(t, err)
}

func TestBadKey(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "table", "history", "silver//orders")
	assert.Error(t, err)
}

func TestCodesCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "codes")
	require.NoError(t, err)
	assert.Contains(t, out, "table.commit_conflict")
	assert.Contains(t, out, "paths.invalid_segment")

	out, err = h.run(t, "codes", "--package", "paths")
	require.NoError(t, err)
	assert.Contains(t, out, "paths.invalid_segment")
	assert.NotContains(t, out, "table.")

	out, err = h.run(t, "codes", "table.not_found")
	require.NoError(t, err)
	assert.Contains(t, out, "table.not_found")
	assert.NotContains(t, out, "table.commit_conflict")

	_, err = h.run(t, "codes", "table.nope")
	assert.True(t, errors.HasCode(err, errors.CommonNotFound))
	_, err = h.run(t, "codes", "--package", "nope")
	assert.True(t, errors.HasCode(err, errors.CommonNotFound))
}
