package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func textEntry(text string, minute int) Entry {
	return Entry{
		ID:         NewID(),
		Kind:       KindText,
		Text:       text,
		CapturedAt: epoch.Add(time.Duration(minute) * time.Minute),
	}
}

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestStore_RecopyBumpsInsteadOfDuplicating(t *testing.T) {
	s := New(10, nil)
	first := textEntry("hello", 0)
	s.Insert(first)
	s.Insert(textEntry("other", 1))
	require.True(t, s.SetFavorite(first.ID, true))
	require.True(t, s.Rename(first.ID, "greeting"))

	again := textEntry("hello", 2)
	s.Insert(again)

	require.Equal(t, 2, s.Len())
	got, ok := s.Get(again.ID)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(2*time.Minute), got.CapturedAt)
	assert.True(t, got.Favorite)
	assert.Equal(t, "greeting", got.Title)

	_, ok = s.Get(first.ID)
	assert.False(t, ok, "old id must be gone")
}

func TestStore_DedupRequiresSameKind(t *testing.T) {
	s := New(10, nil)
	s.Insert(textEntry("https://example.com", 0))
	u := textEntry("https://example.com", 1)
	u.Kind = KindURL
	s.Insert(u)
	assert.Equal(t, 2, s.Len())
}

func TestStore_ImageDedupComparesBytes(t *testing.T) {
	s := New(10, nil)
	s.Insert(Entry{ID: NewID(), Kind: KindImage, Data: []byte{1, 2, 3}, CapturedAt: epoch})
	s.Insert(Entry{ID: NewID(), Kind: KindImage, Data: []byte{1, 2, 3}, CapturedAt: epoch.Add(time.Second)})
	s.Insert(Entry{ID: NewID(), Kind: KindImage, Data: []byte{1, 2, 4}, CapturedAt: epoch.Add(2 * time.Second)})
	assert.Equal(t, 2, s.Len())
}

func TestStore_CapacityInvariant(t *testing.T) {
	s := New(3, nil)
	for i := range 20 {
		s.Insert(textEntry(fmt.Sprintf("item-%d", i), i))
		require.LessOrEqual(t, s.Len(), 3)
	}
	assert.Equal(t, []string{"item-19", "item-18", "item-17"}, texts(s.Entries()))
}

func TestStore_EvictsOldestNonFavorite(t *testing.T) {
	s := New(2, nil)
	a := textEntry("A", 0)
	b := textEntry("B", 1)
	c := textEntry("C", 2)

	s.Insert(a)
	s.Insert(b)
	require.True(t, s.SetFavorite(a.ID, true))
	s.Insert(c)

	got := s.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"A", "C"}, texts(got))
	assert.True(t, got[0].Favorite)
}

func TestStore_EvictionRunsAfterEachInsert(t *testing.T) {
	s := New(2, nil)
	a := textEntry("A", 0)
	s.Insert(a)
	s.Insert(textEntry("B", 1))
	s.Insert(textEntry("C", 2))

	// A was already evicted when C arrived, so favoriting it is a no-op.
	assert.False(t, s.SetFavorite(a.ID, true))
	assert.Equal(t, []string{"C", "B"}, texts(s.Entries()))
}

func TestStore_FavoritesCanBeEvictedWhenTheyAloneOverflow(t *testing.T) {
	s := New(3, nil)
	var ids []string
	for i := range 3 {
		e := textEntry(fmt.Sprintf("fav-%d", i), i)
		s.Insert(e)
		ids = append(ids, e.ID)
	}
	for _, id := range ids {
		s.SetFavorite(id, true)
	}
	require.NoError(t, s.SetLimit(2))
	assert.Equal(t, []string{"fav-2", "fav-1"}, texts(s.Entries()))
}

func TestStore_OrderingFavoritesFirstThenNewest(t *testing.T) {
	s := New(10, nil)
	old := textEntry("old", 0)
	s.Insert(old)
	s.Insert(textEntry("mid", 1))
	s.Insert(textEntry("new", 2))
	s.SetFavorite(old.ID, true)

	assert.Equal(t, []string{"old", "new", "mid"}, texts(s.Entries()))

	s.SetFavorite(old.ID, false)
	assert.Equal(t, []string{"new", "mid", "old"}, texts(s.Entries()))
}

func TestStore_TargetedMutationsAreNoopsForUnknownIDs(t *testing.T) {
	var changes []Change
	s := New(10, func(c Change) { changes = append(changes, c) })

	assert.False(t, s.SetFavorite("missing", true))
	assert.False(t, s.Delete("missing"))
	assert.False(t, s.Rename("missing", "x"))
	assert.False(t, s.SetText("missing", "x"))
	assert.Empty(t, changes)
}

func TestStore_SetTextKeepsIdentityAndDropsStyled(t *testing.T) {
	s := New(10, nil)
	e := textEntry("draft", 0)
	e.Styled = []byte(`{\rtf1 draft}`)
	e.StyledType = "rtf"
	s.Insert(e)

	require.True(t, s.SetText(e.ID, "final"))
	got, _ := s.Get(e.ID)
	assert.Equal(t, "final", got.Text)
	assert.Nil(t, got.Styled)
	assert.Empty(t, got.StyledType)

	assert.False(t, s.SetText(e.ID, ""), "empty text is rejected")

	img := Entry{ID: NewID(), Kind: KindImage, Data: []byte{1}, CapturedAt: epoch}
	s.Insert(img)
	assert.False(t, s.SetText(img.ID, "nope"))
}

func TestStore_EveryMutationSignals(t *testing.T) {
	var ops []Op
	s := New(10, func(c Change) { ops = append(ops, c.Op) })

	e := textEntry("x", 0)
	s.Insert(e)
	s.SetFavorite(e.ID, true)
	s.Rename(e.ID, "t")
	s.SetText(e.ID, "y")
	s.Delete(e.ID)
	s.Clear()

	assert.Equal(t, []Op{OpInsert, OpFavorite, OpRename, OpEdit, OpDelete, OpClear}, ops)
}

func TestStore_SetLimit(t *testing.T) {
	s := New(5, nil)
	for i := range 5 {
		s.Insert(textEntry(fmt.Sprintf("%d", i), i))
	}
	assert.ErrorIs(t, s.SetLimit(0), ErrInvalidLimit)
	require.NoError(t, s.SetLimit(2))
	assert.Equal(t, []string{"4", "3"}, texts(s.Entries()))
	assert.Equal(t, 2, s.Limit())
}

func TestStore_RestoreDropsInvalidAndDuplicateEntries(t *testing.T) {
	s := New(10, nil)
	good := textEntry("ok", 1)
	s.Restore([]Entry{
		textEntry("older", 0),
		good,
		good,
		{ID: "bad", Kind: "sound", Text: "x"},
		{ID: "empty", Kind: KindText},
	})
	assert.Equal(t, []string{"ok", "older"}, texts(s.Entries()))
}

func TestEntry_Label(t *testing.T) {
	assert.Equal(t, "first line", Entry{Kind: KindText, Text: "  first line\nsecond"}.Label())
	assert.Equal(t, "report.pdf", Entry{Kind: KindFile, Text: "/tmp/report.pdf"}.Label())
	assert.Equal(t, "Image (2 KB)", Entry{Kind: KindImage, Data: make([]byte, 1500)}.Label())
	assert.Equal(t, "custom", Entry{Kind: KindText, Text: "x", Title: "custom"}.Label())
}
