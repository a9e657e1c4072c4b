package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

const doc = `{"date":"2024-01-01","fetchedAt":"x","feeds":{"hot":[{"id":"abc","title":"T","content":"C"}],"top":[],"new":[]},"stats":{}}`

func TestListOrdersLatestFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "archive/2024-01-02.json", doc)
	writeFile(t, dir, "archive/2024-01-01.json", doc)
	writeFile(t, dir, "archive/notes.txt", "ignore")
	writeFile(t, dir, "latest.json", doc)

	handles, err := NewStore(dir).List()
	require.NoError(t, err)
	assert.Equal(t, []Handle{"latest.json", "archive/2024-01-01.json", "archive/2024-01-02.json"}, handles)
}

func TestListEmptyDir(t *testing.T) {
	handles, err := NewStore(t.TempDir()).List()
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestLoadMissingIsAbsent(t *testing.T) {
	got, err := NewStore(t.TempDir()).Load("latest.json")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadCorruptIsIOError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", "{not json")

	_, err := NewStore(dir).Load("latest.json")
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "decode", ioErr.Op)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", doc)
	store := NewStore(dir)

	d, err := store.Load("latest.json")
	require.NoError(t, err)
	d.Feeds.Hot[0].Summary = "<中文>\n---\nEnglish"
	require.NoError(t, store.Save("latest.json", d))

	raw, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"date\": \"2024-01-01\"")
	assert.Contains(t, string(raw), `"summary": "<中文>\n---\nEnglish"`)

	again, err := store.Load("latest.json")
	require.NoError(t, err)
	assert.Equal(t, "<中文>\n---\nEnglish", again.Feeds.Hot[0].Summary)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".latest.json.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestUpdateSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", doc)
	store := NewStore(dir)

	before, err := os.Stat(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)

	changed, err := store.Update(context.Background(), "latest.json", func(*model.Document) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, changed)

	raw, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	assert.Equal(t, doc, string(raw))
	after, err := os.Stat(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestUpdateMissingDocument(t *testing.T) {
	called := false
	changed, err := NewStore(t.TempDir()).Update(context.Background(), "archive/x.json", func(*model.Document) (bool, error) {
		called = true
		return true, nil
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, called)
}

func TestUpdateSerializesPerHandle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", `{"feeds":{"hot":[`+
		`{"id":"p0"},{"id":"p1"},{"id":"p2"},{"id":"p3"},{"id":"p4"},`+
		`{"id":"p5"},{"id":"p6"},{"id":"p7"},{"id":"p8"},{"id":"p9"}]}}`)
	store := NewStore(dir)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(context.Background(), "latest.json", func(d *model.Document) (bool, error) {
				d.Feeds.Hot[i].Summary = "done"
				return true, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	d, err := store.Load("latest.json")
	require.NoError(t, err)
	for _, p := range d.Feeds.Hot {
		assert.Equal(t, "done", p.Summary, p.ID)
	}
}
