package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackends(t *testing.T) {
	for _, backend := range []string{BackendLevelDB, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			store, err := Open(backend, t.TempDir())
			require.NoError(t, err)
			defer store.Close()

			_, err = store.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put([]byte("tx:b"), []byte("2")))
			require.NoError(t, store.Put([]byte("tx:a"), []byte("1")))
			require.NoError(t, store.Put([]byte("other"), []byte("x")))

			v, err := store.Get([]byte("tx:a"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), v)

			var keys []string
			require.NoError(t, store.Iterate([]byte("tx:"), func(key, _ []byte) bool {
				keys = append(keys, string(key))
				return true
			}))
			require.Equal(t, []string{"tx:a", "tx:b"}, keys)

			count := 0
			require.NoError(t, store.Iterate([]byte("tx:"), func(_, _ []byte) bool {
				count++
				return false
			}))
			require.Equal(t, 1, count)

			require.NoError(t, store.Delete([]byte("tx:a")))
			require.NoError(t, store.Delete([]byte("tx:a")))
			_, err = store.Get([]byte("tx:a"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	require.Error(t, err)
}
