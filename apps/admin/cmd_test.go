package main

import (
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/cache"
)

type memStore struct {
	*cache.MemoryStore
	closed bool
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func setup(t *testing.T) (*commandLine, *memStore) {
	store := &memStore{MemoryStore: cache.NewMemoryStore()}
	return &commandLine{
		logger: core.NopLogger{},
		openDB: func() (*sql.DB, error) {
			// sql.Open does not connect; the goose funcs are mocked
			return sql.Open("postgres", "postgres://localhost/engage_test?sslmode=disable")
		},
		openStore: func() (cacheStore, error) { return store, nil },
	}, store
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantCalls  []string
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var calls []string
	record := func(name string) func(*sql.DB, fs.FS, string) error {
		return func(db *sql.DB, fsys fs.FS, dir string) error {
			if _, err := fs.Stat(fsys, dir+"/00001_activities.sql"); err != nil {
				return err
			}
			calls = append(calls, name)
			return nil
		}
	}
	recordTo := func(name string) func(*sql.DB, fs.FS, string, int64) error {
		return func(db *sql.DB, fsys fs.FS, dir string, version int64) error {
			calls = append(calls, name)
			return nil
		}
	}
	gooseUpFunc = record("up")
	gooseUpByOneFunc = record("up-by-one")
	gooseDownFunc = record("down")
	gooseRedoFunc = record("redo")
	gooseUpToFunc = recordTo("up-to")
	gooseDownToFunc = recordTo("down-to")

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: migrate up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: migrate down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}, wantCalls: []string{"up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}, wantCalls: []string{"up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, wantCalls: []string{"up-to"}},
		{name: "down", args: []string{"migrate", "down"}, wantCalls: []string{"down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}, wantCalls: []string{"down-to"}},
		{name: "redo", args: []string{"migrate", "redo"}, wantCalls: []string{"redo"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			calls = nil
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func Test_commandLine_migrateDBError(t *testing.T) {
	cli, _ := setup(t)
	cli.openDB = func() (*sql.DB, error) { return nil, errors.New("connection refused") }
	assert.EqualError(t, cli.run([]string{"admin", "migrate", "up"}), "connection refused")
}

func Test_commandLine_clearCache(t *testing.T) {
	cli, store := setup(t)
	seed := func() {
		require.NoError(t, store.Set("user/u1/completions", []byte(`{}`)))
		require.NoError(t, store.Set("user/u2/completions", []byte(`{}`)))
		require.NoError(t, store.Set("admin/stats", []byte(`{}`)))
	}

	seed()
	require.NoError(t, cli.run([]string{"admin", "clearcache", "-prefix", "user/u1/"}))
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.closed)

	require.NoError(t, cli.run([]string{"admin", "clearcache"}))
	assert.Equal(t, 0, store.Len())

	cli.openStore = func() (cacheStore, error) { return nil, errors.New("cannot acquire directory lock") }
	assert.EqualError(t, cli.run([]string{"admin", "clearcache"}), "cannot acquire directory lock")
}
