package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroidss/ToolArtifact/internal/config"
)

type storeFactory func(t *testing.T) VectorStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"chromem-memory": func(t *testing.T) VectorStore {
			s, err := NewChromemStore("", "tools", false)
			require.NoError(t, err)
			return s
		},
		"chromem-persistent": func(t *testing.T) VectorStore {
			s, err := NewChromemStore(filepath.Join(t.TempDir(), "chromem"), "tools", false)
			require.NoError(t, err)
			return s
		},
		"sqlite-modernc": func(t *testing.T) VectorStore {
			s, err := NewSQLiteStore("sqlite", filepath.Join(t.TempDir(), "tools.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func rec(id string, vec ...float32) Record {
	return Record{
		ID:        id,
		Document:  id + ": test record",
		Embedding: vec,
		Metadata:  map[string]string{"name": id, "is_internal": "false"},
	}
}

func TestVectorStoreContract(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("get missing", func(t *testing.T) {
				s := open(t)
				_, err := s.Get(ctx, "absent")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("empty id", func(t *testing.T) {
				s := open(t)
				assert.ErrorIs(t, s.Add(ctx, rec("", 1, 0)), ErrEmptyID)
				_, err := s.Get(ctx, "")
				assert.ErrorIs(t, err, ErrEmptyID)
			})

			t.Run("add then get", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Add(ctx, rec("alpha", 1, 0, 0)))

				got, err := s.Get(ctx, "alpha")
				require.NoError(t, err)
				assert.Equal(t, "alpha", got.ID)
				assert.Equal(t, "alpha: test record", got.Document)
				assert.Equal(t, map[string]string{"name": "alpha", "is_internal": "false"}, got.Metadata)
				assert.InDeltaSlice(t, []float32{1, 0, 0}, got.Embedding, 1e-6)
			})

			t.Run("duplicate add keeps first", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Add(ctx, rec("alpha", 1, 0, 0)))

				second := rec("alpha", 0, 1, 0)
				second.Document = "overwritten"
				err := s.Add(ctx, second)
				assert.ErrorIs(t, err, ErrAlreadyExists)

				got, err := s.Get(ctx, "alpha")
				require.NoError(t, err)
				assert.Equal(t, "alpha: test record", got.Document)
				n, err := s.Count(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("concurrent add of one id", func(t *testing.T) {
				s := open(t)
				const workers = 8
				var wg sync.WaitGroup
				errs := make([]error, workers)
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						errs[i] = s.Add(ctx, rec("race", 1, 0))
					}(i)
				}
				wg.Wait()

				ok, conflicts := 0, 0
				for _, err := range errs {
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrAlreadyExists):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}
				assert.Equal(t, 1, ok)
				assert.Equal(t, workers-1, conflicts)
			})

			t.Run("query ranks and clamps", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Add(ctx, rec("near", 1, 0, 0)))
				require.NoError(t, s.Add(ctx, rec("mid", 0.8, 0.6, 0)))
				require.NoError(t, s.Add(ctx, rec("far", 0, 0, 1)))

				matches, err := s.Query(ctx, []float32{1, 0, 0}, 10)
				require.NoError(t, err)
				require.Len(t, matches, 3)
				assert.Equal(t, []string{"near", "mid", "far"}, ids(matches))
				assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
				assert.Equal(t, "near", matches[0].Metadata["name"])

				top, err := s.Query(ctx, []float32{1, 0, 0}, 2)
				require.NoError(t, err)
				assert.Equal(t, []string{"near", "mid"}, ids(top))

				none, err := s.Query(ctx, []float32{1, 0, 0}, 0)
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("query empty store", func(t *testing.T) {
				s := open(t)
				matches, err := s.Query(ctx, []float32{1, 0}, 5)
				require.NoError(t, err)
				assert.Empty(t, matches)
			})
		})
	}
}

func ids(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chromem")

	s, err := NewChromemStore(dir, "tools", false)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, rec("kept", 0, 1)))
	require.NoError(t, s.Close())

	reopened, err := NewChromemStore(dir, "tools", false)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Metadata["name"])
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tools.db")

	s, err := NewSQLiteStore("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, rec("kept", 0, 1)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore("sqlite", path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got.Embedding)
}

func TestSQLiteStore_GoRankingMatchesSQL(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore("sqlite", filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, rec("a", 1, 0)))
	require.NoError(t, s.Add(ctx, rec("b", 0.6, 0.8)))
	require.NoError(t, s.Add(ctx, rec("c", 0, 1)))
	require.NoError(t, s.Add(ctx, rec("odd", 1, 0, 0)))

	scan, err := s.queryScan(ctx, []float32{0, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(scan))

	require.NotEmpty(t, s.distance, "modernc driver ranks in SQL")
	sql, err := s.querySQL(ctx, []float32{0, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, ids(scan), ids(sql))
	for i := range sql {
		assert.InDelta(t, scan[i].Similarity, sql[i].Similarity, 1e-6, sql[i].ID)
	}
}

func TestSQLiteStore_SkipsOtherDimensions(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore("sqlite", filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, rec("wide", 1, 0, 0)))
	require.NoError(t, s.Add(ctx, rec("narrow", 1, 0)))

	for name, query := range map[string]func(context.Context, []float32, int) ([]Match, error){
		"sql":  s.querySQL,
		"scan": s.queryScan,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := query(ctx, []float32{1, 0}, 5)
			require.NoError(t, err)
			assert.Equal(t, []string{"narrow"}, ids(got))

			got, err = query(ctx, []float32{0, 0, 1}, 5)
			require.NoError(t, err)
			assert.Equal(t, []string{"wide"}, ids(got))
		})
	}

	got, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"narrow"}, ids(got))
}

func TestSQLiteStore_MattnDriver(t *testing.T) {
	s, err := NewSQLiteStore("sqlite3", filepath.Join(t.TempDir(), "tools.db"))
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED") || strings.Contains(err.Error(), "cgo") {
			t.Skipf("mattn/go-sqlite3 needs cgo: %v", err)
		}
		require.NoError(t, err)
	}
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, rec("x", 1, 0)))
	assert.ErrorIs(t, s.Add(ctx, rec("x", 1, 0)), ErrAlreadyExists)
	matches, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids(matches))
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StoreConfig{Backend: "chromem", Collection: "tools"}, "")
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, s)

	s, err = Open(config.StoreConfig{Backend: "sqlite", Driver: "sqlite"}, filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.StoreConfig{Backend: "redis"}, "")
	assert.ErrorContains(t, err, "unsupported store backend")

	_, err = Open(config.StoreConfig{Backend: "sqlite"}, "")
	assert.ErrorContains(t, err, "path is required")
}

func TestEncodeDecodeFloat32(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := decodeFloat32(encodeFloat32(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeFloat32([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = decodeFloat32(42)
	assert.Error(t, err)
}
