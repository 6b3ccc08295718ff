package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgxURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", pgxURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/db", pgxURL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://localhost/db", pgxURL("pgx5://localhost/db"))
}

func TestEmbeddedFilesPaired(t *testing.T) {
	ups, err := files.ReadDir(".")
	assert.NoError(t, err)

	seen := map[string]int{}
	for _, f := range ups {
		name := f.Name()
		switch {
		case len(name) > 7 && name[len(name)-7:] == ".up.sql":
			seen[name[:len(name)-7]]++
		case len(name) > 9 && name[len(name)-9:] == ".down.sql":
			seen[name[:len(name)-9]]++
		}
	}
	assert.Len(t, seen, 3)
	for base, n := range seen {
		assert.Equal(t, 2, n, "migration %s needs both up and down", base)
	}
}
