package records

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pinpress/internal/apperr"
	"github.com/starford/pinpress/internal/storage"
)

// stepClock advances by one second on every call.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) (*Store, *storage.Memory) {
	t.Helper()
	kv := storage.NewMemory()
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewStore(kv, WithClock(clock.Now)), kv
}

type failingKV struct {
	getErr, setErr error
	inner          storage.KV
}

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.inner.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.inner.Set(ctx, key, value)
}

func TestList_EmptyWhenUninitialized(t *testing.T) {
	s, _ := newTestStore(t)
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestCreateThenGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, NewRecord{Title: "T", Content: "**a**", CID: "cid1", URL: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.True(t, rec.CreatedAt.Equal(rec.UpdatedAt))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "**a**", got.Content)
	assert.Equal(t, "cid1", got.CID)
	assert.Equal(t, "u1", got.URL)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
}

func TestGet_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreate_NewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, NewRecord{Title: "T", Content: "**a**", CID: "cid1", URL: "u1"})
	require.NoError(t, err)
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "T", list[0].Title)

	second, err := s.Create(ctx, NewRecord{Title: "T2", CID: "cid2", URL: "u2"})
	require.NoError(t, err)
	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestCreate_UniqueIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec, err := s.Create(ctx, NewRecord{Title: fmt.Sprint(i)})
		require.NoError(t, err)
		require.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestCreate_RejectsReusedID(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, WithIDGenerator(func() (string, error) { return "fixed", nil }))
	ctx := context.Background()

	_, err := s.Create(ctx, NewRecord{Title: "a"})
	require.NoError(t, err)
	_, err = s.Create(ctx, NewRecord{Title: "b"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	list, _ := s.List(ctx)
	assert.Len(t, list, 1)
}

func TestUpdate_OnlyTitleChanges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	orig, err := s.Create(ctx, NewRecord{Title: "T", Content: "c", CID: "cid1", URL: "u1"})
	require.NoError(t, err)

	upd, err := s.Update(ctx, orig.ID, Patch{Title: String("X")})
	require.NoError(t, err)
	require.NotNil(t, upd)

	assert.Equal(t, "X", upd.Title)
	assert.Equal(t, orig.Content, upd.Content)
	assert.Equal(t, orig.CID, upd.CID)
	assert.Equal(t, orig.URL, upd.URL)
	assert.True(t, upd.CreatedAt.Equal(orig.CreatedAt))
	assert.True(t, upd.UpdatedAt.After(orig.UpdatedAt))

	stored, _ := s.Get(ctx, orig.ID)
	assert.Equal(t, "X", stored.Title)
	assert.True(t, stored.UpdatedAt.Equal(upd.UpdatedAt))
}

func TestUpdate_StrictlyIncreasesWithFrozenClock(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(storage.NewMemory(), WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	rec, err := s.Create(ctx, NewRecord{Title: "a"})
	require.NoError(t, err)
	prev := rec.UpdatedAt
	for i := 0; i < 3; i++ {
		upd, err := s.Update(ctx, rec.ID, Patch{Content: String(fmt.Sprint(i))})
		require.NoError(t, err)
		assert.True(t, upd.UpdatedAt.After(prev))
		prev = upd.UpdatedAt
	}
}

func TestUpdate_KeepsPosition(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, NewRecord{Title: "a"})
	b, _ := s.Create(ctx, NewRecord{Title: "b"})

	_, err := s.Update(ctx, a.ID, Patch{CID: String("new"), URL: String("gw/new")})
	require.NoError(t, err)

	list, _ := s.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
	assert.Equal(t, "new", list[1].CID)
}

func TestUpdate_MissingIDHasNoSideEffect(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, NewRecord{Title: "a"})
	before, _, _ := kv.Get(ctx, HistoryKey)

	got, err := s.Update(ctx, "missing", Patch{Title: String("X")})
	require.NoError(t, err)
	assert.Nil(t, got)

	after, _, _ := kv.Get(ctx, HistoryKey)
	assert.Equal(t, before, after)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, NewRecord{Title: "a"})
	_, _ = s.Create(ctx, NewRecord{Title: "b"})

	ok, err := s.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	list, _ := s.List(ctx)
	assert.Len(t, list, 2)

	ok, err = s.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	list, _ = s.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Title)

	got, _ := s.Get(ctx, a.ID)
	assert.Nil(t, got)
}

func TestClear(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, NewRecord{Title: "a"})

	require.NoError(t, s.Clear(ctx))
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	raw, ok, _ := kv.Get(ctx, HistoryKey)
	assert.True(t, ok)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestStoredShape(t *testing.T) {
	kv := storage.NewMemory()
	created := time.UnixMilli(1700000000123)
	s := NewStore(kv,
		WithClock(func() time.Time { return created }),
		WithIDGenerator(func() (string, error) { return "abc", nil }))
	ctx := context.Background()
	_, err := s.Create(ctx, NewRecord{Title: "T", Content: "c", CID: "Qm", URL: "gw/Qm"})
	require.NoError(t, err)

	raw, _, _ := kv.Get(ctx, HistoryKey)
	assert.JSONEq(t, `[{"id":"abc","title":"T","content":"c","cid":"Qm","url":"gw/Qm","createdAt":1700000000123,"updatedAt":1700000000123}]`, string(raw))
}

func TestReadsExistingHistory(t *testing.T) {
	kv := storage.NewMemory()
	ctx := context.Background()
	_ = kv.Set(ctx, HistoryKey, []byte(`[{"id":"lq1x2","title":"old","content":"x","cid":"Qm1","url":"u","createdAt":1,"updatedAt":2}]`))

	got, err := NewStore(kv).Get(ctx, "lq1x2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "old", got.Title)
	assert.Equal(t, int64(2), got.UpdatedAt.UnixMilli())
}

func TestStorageErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	readFail := NewStore(&failingKV{getErr: boom, inner: storage.NewMemory()})
	_, err := readFail.List(ctx)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.ErrorIs(t, err, boom)

	writeFail := NewStore(&failingKV{setErr: boom, inner: storage.NewMemory()})
	_, err = writeFail.Create(ctx, NewRecord{Title: "a"})
	assert.ErrorIs(t, err, apperr.ErrStorage)

	kv := storage.NewMemory()
	_ = kv.Set(ctx, HistoryKey, []byte(`{not a list`))
	_, err = NewStore(kv).List(ctx)
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestETagChangesOnUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec, _ := s.Create(ctx, NewRecord{Title: "a"})
	upd, _ := s.Update(ctx, rec.ID, Patch{Title: String("b")})
	assert.NotEqual(t, rec.ETag(), upd.ETag())
	assert.Len(t, rec.ETag(), 16)
}

func TestUpdateIf_ChecksETagAtWriteTime(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec, err := s.Create(ctx, NewRecord{Title: "a", CID: "c1"})
	require.NoError(t, err)
	etag := rec.ETag()

	first, err := s.UpdateIf(ctx, rec.ID, etag, Patch{CID: String("c2")})
	require.NoError(t, err)
	assert.Equal(t, "c2", first.CID)

	_, err = s.UpdateIf(ctx, rec.ID, etag, Patch{CID: String("c3")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	stored, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "c2", stored.CID, "rejected write must leave the record alone")
	assert.True(t, stored.UpdatedAt.Equal(first.UpdatedAt))

	_, err = s.UpdateIf(ctx, rec.ID, first.ETag(), Patch{CID: String("c3")})
	assert.NoError(t, err)
}
