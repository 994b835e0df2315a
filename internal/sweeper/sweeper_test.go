package sweeper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/harmony-go/internal/filerefs"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

func TestSweeper_Sweep(t *testing.T) {
	dir := t.TempDir()
	refs := filerefs.NewManager(nil)
	s := New(refs, Options{Dir: dir, Prefix: "harmony", MinAge: time.Hour})

	orphan := filepath.Join(dir, "harmony-youtube-aaaaaaaaaaa.opus")
	registered := filepath.Join(dir, "harmony-youtube-bbbbbbbbbbb.opus")
	fresh := filepath.Join(dir, "harmony-youtube-ccccccccccc.opus")
	foreign := filepath.Join(dir, "other-youtube-ddddddddddd.opus")
	writeAged(t, orphan, 2*time.Hour)
	writeAged(t, registered, 2*time.Hour)
	writeAged(t, fresh, time.Minute)
	writeAged(t, foreign, 2*time.Hour)
	require.NoError(t, refs.AddReference(registered))

	removed, err := s.Sweep()

	require.NoError(t, err)
	require.Equal(t, []string{orphan}, removed)
	require.NoFileExists(t, orphan)
	require.FileExists(t, registered)
	require.FileExists(t, fresh)
	require.FileExists(t, foreign)
}

func TestSweeper_Sweep_SkipsDownloadInProgress(t *testing.T) {
	dir := t.TempDir()
	refs := filerefs.NewManager(nil)
	s := New(refs, Options{Dir: dir, Prefix: "harmony", MinAge: time.Hour})

	target := filepath.Join(dir, "harmony-youtube-aaaaaaaaaaa.opus")
	intermediate := filepath.Join(dir, "harmony-youtube-aaaaaaaaaaa.webm")
	require.NoError(t, refs.Reserve(target))
	writeAged(t, target, 48*time.Hour)
	writeAged(t, intermediate, 48*time.Hour)

	removed, err := s.Sweep()

	require.NoError(t, err)
	require.Empty(t, removed)
	require.FileExists(t, target)
	require.FileExists(t, intermediate)

	require.NoError(t, refs.Commit(target))
	require.Equal(t, 1, refs.Count(target))
}

func TestSweeper_Sweep_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "harmony-cache")
	require.NoError(t, os.Mkdir(sub, 0o755))
	stamp := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(sub, stamp, stamp))
	s := New(filerefs.NewManager(nil), Options{Dir: dir, Prefix: "harmony", MinAge: time.Hour})

	removed, err := s.Sweep()

	require.NoError(t, err)
	require.Empty(t, removed)
	require.DirExists(t, sub)
}

func TestSweeper_StartStop(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "harmony-youtube-aaaaaaaaaaa.opus")
	writeAged(t, orphan, 2*time.Hour)
	s := New(filerefs.NewManager(nil), Options{Dir: dir, Prefix: "harmony", MinAge: time.Hour, Schedule: "@hourly"})

	require.NoError(t, s.Start())
	s.Stop()

	require.NoFileExists(t, orphan)
}

func TestSweeper_Start_BadSchedule(t *testing.T) {
	s := New(filerefs.NewManager(nil), Options{Dir: t.TempDir(), Prefix: "harmony", Schedule: "whenever"})

	require.Error(t, s.Start())
}
