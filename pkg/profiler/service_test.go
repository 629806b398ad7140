package profiler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts ServiceOpts
	}{
		{"missing datadir", ServiceOpts{Port: 18101, StatsInterval: time.Minute}},
		{"port out of range", ServiceOpts{Port: 80, StatsInterval: time.Minute, Datadir: "stats"}},
		{"missing stats interval", ServiceOpts{Port: 18101, Datadir: "stats"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, err := NewService(tt.opts)
			require.Error(t, err)
			require.Nil(t, svc)
		})
	}
}

func TestProfilerHandler(t *testing.T) {
	t.Parallel()

	svc, err := NewService(ServiceOpts{
		Port: 18101, StatsInterval: time.Minute, Datadir: t.TempDir(),
	})
	require.NoError(t, err)

	server := httptest.NewServer(svc.handler())
	defer server.Close()

	for _, path := range []string{"/metrics", "/debug/pprof/"} {
		res, err := http.Get(server.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.NotEmpty(t, body)
	}
}

func TestDumpMetrics(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	svc, err := NewService(ServiceOpts{
		Port: 18101, StatsInterval: time.Minute, Datadir: dir,
	})
	require.NoError(t, err)

	require.NoError(t, svc.dumpMetrics(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
