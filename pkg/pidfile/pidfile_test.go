package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPIDFile(t *testing.T, alive func(int) bool) *PIDFile {
	t.Helper()
	p := New(filepath.Join(t.TempDir(), "run", "acsd.pid"))
	if alive != nil {
		p.alive = alive
	}
	return p
}

func TestCreateAndRemove(t *testing.T) {
	p := newTestPIDFile(t, nil)
	require.NoError(t, p.Create())

	data, err := os.ReadFile(p.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))

	running, pid, err := p.CheckRunning()
	require.NoError(t, err)
	assert.True(t, running, "the test process is alive")
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, p.Remove())
	_, err = os.Stat(p.Path())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, p.Remove(), "removing twice is fine")
}

func TestCreateWhileRunning(t *testing.T) {
	p := newTestPIDFile(t, func(int) bool { return true })
	require.NoError(t, os.MkdirAll(filepath.Dir(p.Path()), 0o755))
	require.NoError(t, os.WriteFile(p.Path(), []byte("4242\n"), 0o644))

	err := p.Create()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), "4242")
}

func TestCreateReplacesStale(t *testing.T) {
	p := newTestPIDFile(t, func(int) bool { return false })
	require.NoError(t, os.MkdirAll(filepath.Dir(p.Path()), 0o755))
	require.NoError(t, os.WriteFile(p.Path(), []byte("4242\n"), 0o644))

	require.NoError(t, p.Create())
	data, err := os.ReadFile(p.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))
}

func TestCreateRejectsGarbage(t *testing.T) {
	p := newTestPIDFile(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Dir(p.Path()), 0o755))
	require.NoError(t, os.WriteFile(p.Path(), []byte("not-a-pid"), 0o644))

	assert.Error(t, p.Create())
}

func TestRemoveForeignPID(t *testing.T) {
	p := newTestPIDFile(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Dir(p.Path()), 0o755))
	require.NoError(t, os.WriteFile(p.Path(), []byte("4242\n"), 0o644))

	assert.Error(t, p.Remove())
	_, err := os.Stat(p.Path())
	assert.NoError(t, err, "a foreign PID file is kept")
}

func TestCheckRunningMissing(t *testing.T) {
	p := newTestPIDFile(t, nil)
	running, pid, err := p.CheckRunning()
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)
}
