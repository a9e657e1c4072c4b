package writeback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/parser"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/snapshot"
)

func strp(s string) *string { return &s }

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func TestNewPayload(t *testing.T) {
	full := NewPayload("raw", model.SummaryResult{
		TitleZh: strp("标题"), SummaryZh: strp("摘要"), TitleEn: strp("Title"), SummaryEn: strp("Summary"),
	})
	assert.Equal(t, Payload{Summary: parser.Combine("摘要", "Summary"), TitleZh: "标题", TitleEn: "Title"}, full)

	fallback := NewPayload("just english", model.SummaryResult{SummaryEn: strp("just english")})
	assert.Equal(t, Payload{Summary: "just english"}, fallback)
}

func TestApplyWritesEveryDocumentContainingPost(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", `{"feeds":{"hot":[{"id":"abc","content":"x"}],"top":[{"id":"abc","content":"x"}],"new":[]}}`)
	writeFile(t, dir, "archive/2024-01-01.json", `{"feeds":{"new":[{"id":"zzz"},{"id":"abc","content":"x"}]}}`)
	untouched := `{"feeds":{"hot":[{"id":"other"}]}}`
	writeFile(t, dir, "archive/2024-01-02.json", untouched)

	store := snapshot.NewStore(dir)
	w := NewWriter(store)
	payload := Payload{Summary: "中\n---\nen", TitleZh: "标题", TitleEn: "Title"}

	written, err := w.Apply(context.Background(), "abc", payload,
		[]snapshot.Handle{"latest.json", "archive/2024-01-01.json", "archive/2024-01-02.json"})
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	assert.Equal(t, untouched, readFile(t, dir, "archive/2024-01-02.json"))

	latest, err := store.Load("latest.json")
	require.NoError(t, err)
	for _, p := range append(latest.Feeds.Hot, latest.Feeds.Top...) {
		assert.Equal(t, "中\n---\nen", p.Summary)
		assert.Equal(t, "标题", p.TitleZh)
		assert.Equal(t, "Title", p.TitleEn)
	}

	archive, err := store.Load("archive/2024-01-01.json")
	require.NoError(t, err)
	assert.Empty(t, archive.Feeds.New[0].Summary)
	assert.Equal(t, "中\n---\nen", archive.Feeds.New[1].Summary)
}

func TestApplyIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", `{"feeds":{"hot":[{"id":"abc"}]}}`)
	w := NewWriter(snapshot.NewStore(dir))
	payload := Payload{Summary: "s"}

	written, err := w.Apply(context.Background(), "abc", payload, []snapshot.Handle{"latest.json"})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	first := readFile(t, dir, "latest.json")

	written, err = w.Apply(context.Background(), "abc", payload, []snapshot.Handle{"latest.json"})
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Equal(t, first, readFile(t, dir, "latest.json"))
}

func TestApplyContinuesAfterDocumentFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", `{broken`)
	writeFile(t, dir, "archive/a.json", `{"feeds":{"hot":[{"id":"abc"}]}}`)
	w := NewWriter(snapshot.NewStore(dir))

	written, err := w.Apply(context.Background(), "abc", Payload{Summary: "s"},
		[]snapshot.Handle{"latest.json", "archive/a.json"})
	assert.Equal(t, 1, written)

	var ioErr *snapshot.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, snapshot.Handle("latest.json"), ioErr.Handle)
}

func TestPayloadApplyKeepsExistingTitlesWhenAbsent(t *testing.T) {
	post := &model.Post{ID: "a", TitleZh: "旧标题"}
	changed := Payload{Summary: "s"}.Apply(post)
	assert.True(t, changed)
	assert.Equal(t, "旧标题", post.TitleZh)
}

func TestFillOnlyTouchesCopiesWithoutSummary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latest.json", `{"feeds":{"hot":[{"id":"abc","summary":"keep"}]}}`)
	writeFile(t, dir, "archive/a.json", `{"feeds":{"hot":[{"id":"abc"}]}}`)
	store := snapshot.NewStore(dir)
	w := NewWriter(store)

	payload := FromPost(&model.Post{ID: "abc", Summary: "filled", TitleEn: "Title"})
	written, err := w.Fill(context.Background(), "abc", payload,
		[]snapshot.Handle{"latest.json", "archive/a.json"})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	latest, err := store.Load("latest.json")
	require.NoError(t, err)
	assert.Equal(t, "keep", latest.Feeds.Hot[0].Summary)

	archive, err := store.Load("archive/a.json")
	require.NoError(t, err)
	assert.Equal(t, "filled", archive.Feeds.Hot[0].Summary)
	assert.Equal(t, "Title", archive.Feeds.Hot[0].TitleEn)
}
