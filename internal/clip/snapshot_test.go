package clip

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicky struct{ *Memory }

func (p panicky) Read(r Rep) ([]byte, error) {
	if r == RepPNG {
		panic("decoder blew up")
	}
	return p.Memory.Read(r)
}

func TestTake_CopiesEveryRepresentation(t *testing.T) {
	m := NewMemory()
	m.Set(App{ID: "com.example.editor"}, []string{"public.utf8-plain-text", "public.rtf"}, map[Rep][]byte{
		RepText: []byte("hello"),
		RepRTF:  []byte(`{\rtf1 hello}`),
	})

	s := Take(m, m.ChangeCount(), m.FrontApp())
	assert.Equal(t, int64(1), s.ChangeCount)
	assert.Equal(t, "com.example.editor", s.App.ID)
	assert.Equal(t, []string{"public.utf8-plain-text", "public.rtf"}, s.Types)
	assert.Equal(t, []byte("hello"), s.Get(RepText))
	assert.True(t, s.Has(RepRTF))
	assert.False(t, s.Has(RepPNG))

	// Later clipboard changes do not leak into the snapshot.
	m.Set(App{}, nil, map[Rep][]byte{RepText: []byte("changed")})
	assert.Equal(t, []byte("hello"), s.Get(RepText))
}

func TestTake_SkipsFailingRepresentations(t *testing.T) {
	m := NewMemory()
	m.Set(App{}, nil, map[Rep][]byte{
		RepFileURL: []byte("file:///tmp/a.txt"),
		RepText:    []byte("a.txt"),
	})
	m.FailRead(RepFileURL, errors.New("permission denied"))

	s := Take(m, m.ChangeCount(), App{})
	assert.False(t, s.Has(RepFileURL))
	assert.True(t, s.Has(RepText))
}

func TestTake_RecoversFromPanickingRead(t *testing.T) {
	m := NewMemory()
	m.Set(App{}, nil, map[Rep][]byte{RepPNG: {0x89}, RepText: []byte("caption")})

	var s Snapshot
	require.NotPanics(t, func() { s = Take(panicky{m}, 1, App{}) })
	assert.False(t, s.Has(RepPNG))
	assert.Equal(t, []byte("caption"), s.Get(RepText))
}

func TestMemory_WriteBumpsChangeCount(t *testing.T) {
	m := NewMemory()
	before := m.ChangeCount()
	require.NoError(t, m.Write([]Item{{Rep: RepText, Data: []byte("x")}, {Rep: RepRTF, Data: []byte("y")}}))
	assert.Equal(t, before+1, m.ChangeCount())
	assert.Equal(t, []string{"text", "rtf"}, m.Types())
}
