package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesWorkspaceAndEnforcesForeignKeys(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plant")
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`CREATE TABLE parent(id TEXT PRIMARY KEY); CREATE TABLE child(pid TEXT REFERENCES parent(id))`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO child(pid) VALUES ('missing')`)
	assert.Error(t, err)

	_, err = os.Stat(Path(dir))
	assert.NoError(t, err)
}

func TestDSNUsesBusyTimeout(t *testing.T) {
	assert.Contains(t, Config{Workspace: "w"}.dsn(), "busy_timeout(5000)")
	assert.Contains(t, Config{Workspace: "w", BusyTimeout: 250 * time.Millisecond}.dsn(), "busy_timeout(250)")
}

func TestPathDefaultsToCurrentDir(t *testing.T) {
	assert.Equal(t, filepath.Join(".", ".moldline", "moldline.db"), Path(""))
	assert.True(t, strings.HasSuffix(Path("/srv/plant"), filepath.Join(".moldline", "moldline.db")))
}
