package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestMigrationsCreateSignupTables(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		b, err := fs.ReadFile(migrationsFS, path)
		all.Write(b)
		return err
	})
	require.NoError(t, err)
	for _, table := range []string{"patients", "signup_sessions", "anamnesis_sessions"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("notascheme")
	assert.Error(t, err)
}

func TestEnsure_InvalidURL(t *testing.T) {
	_, err := Ensure("notascheme")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDirty)
}
