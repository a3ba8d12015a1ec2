package backend

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasyager/dbt-loom/internal/testutil"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// newStageBackend wires a SnowflakeBackend to sqlmock and a temp directory
// under base. When file is non-empty, the "downloaded" manifest is written
// there as if the stage GET had produced it.
func newStageBackend(t *testing.T, file string, doc any) (*SnowflakeBackend, sqlmock.Sqlmock, string) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	tmp := filepath.Join(t.TempDir(), "dbt_loom_test")
	b := NewSnowflakeBackend(WarehouseProfile{Account: "xy12345"}, testutil.NewTestLogger(t))
	b.open = func(WarehouseProfile) (*sql.DB, error) { return db, nil }
	b.mkdirTemp = func(string, string) (string, error) {
		if err := os.Mkdir(tmp, 0o700); err != nil {
			return "", err
		}
		if file != "" {
			testutil.WriteManifest(t, tmp, file, doc)
		}
		return tmp, nil
	}
	return b, mock, tmp
}

func stageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"file", "size", "status", "message"})
}

func TestSnowflakeBackend_Fetch(t *testing.T) {
	for _, file := range []string{"manifest.json", "manifest.json.gz"} {
		t.Run(file, func(t *testing.T) {
			b, mock, tmp := newStageBackend(t, file, testutil.Manifest("warehouse", map[string]any{}))

			mock.ExpectQuery("GET @loom_stage/prod/" + file + " 'file://" + filepath.ToSlash(tmp) + "/'").
				WillReturnRows(stageRows().AddRow(file, 512, "DOWNLOADED", ""))
			mock.ExpectClose()

			doc, err := b.Fetch(context.Background(), core.StageConfig{Stage: "loom_stage", StagePath: "/prod/" + file})
			require.NoError(t, err)
			assert.Equal(t, "warehouse", doc.ProjectName())

			require.NoError(t, mock.ExpectationsWereMet())
			assert.NoDirExists(t, tmp)
		})
	}
}

func TestSnowflakeBackend_NoRows(t *testing.T) {
	b, mock, tmp := newStageBackend(t, "", nil)

	mock.ExpectQuery("GET @loom_stage/manifest.json 'file://" + filepath.ToSlash(tmp) + "/'").
		WillReturnRows(stageRows())
	mock.ExpectClose()

	_, err := b.Fetch(context.Background(), core.StageConfig{Stage: "loom_stage", StagePath: "manifest.json"})
	assert.ErrorIs(t, err, core.ErrEmptyResult)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.NoDirExists(t, tmp)
}

func TestSnowflakeBackend_QueryFailure(t *testing.T) {
	b, mock, tmp := newStageBackend(t, "", nil)

	queryErr := errors.New("stage does not exist")
	mock.ExpectQuery("GET @missing/manifest.json 'file://" + filepath.ToSlash(tmp) + "/'").
		WillReturnError(queryErr)
	mock.ExpectClose()

	_, err := b.Fetch(context.Background(), core.StageConfig{Stage: "missing", StagePath: "manifest.json"})
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.ErrorIs(t, err, queryErr)
	assert.NoDirExists(t, tmp)
}

func TestSnowflakeBackend_MalformedFile(t *testing.T) {
	b, mock, tmp := newStageBackend(t, "", nil)
	b.mkdirTemp = func(string, string) (string, error) {
		require.NoError(t, os.Mkdir(tmp, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(tmp, "manifest.json"), []byte("{"), 0o600))
		return tmp, nil
	}

	mock.ExpectQuery("GET @s/manifest.json 'file://" + filepath.ToSlash(tmp) + "/'").
		WillReturnRows(stageRows().AddRow("manifest.json", 1, "DOWNLOADED", ""))
	mock.ExpectClose()

	_, err := b.Fetch(context.Background(), core.StageConfig{Stage: "s", StagePath: "manifest.json"})
	assert.ErrorIs(t, err, core.ErrMalformedPayload)
	assert.NoDirExists(t, tmp)
}

func TestWarehouseProfile_DSN(t *testing.T) {
	_, err := WarehouseProfile{}.DSN()
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	dsn, err := WarehouseProfile{Account: "xy12345", User: "loader", Password: "pw", Database: "analytics"}.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "xy12345")
	assert.Contains(t, dsn, "analytics")
}
