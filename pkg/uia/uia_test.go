package uia

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryLookupAndForget(t *testing.T) {
	reg := NewMemoryRegistry()
	el := NewStaticElement("edit", "Search", "chrome")
	reg.Put("e1", el)

	info, err := Describe(reg, "e1")
	require.NoError(t, err)
	require.Equal(t, &Info{Role: "edit", Name: "Search", ApplicationName: "chrome"}, info)

	reg.Forget("e1")
	info, err = Describe(reg, "e1")
	require.Nil(t, info)
	require.True(t, errors.Is(err, ErrElementUnavailable))
}

func TestDescribeZeroRef(t *testing.T) {
	info, err := Describe(NewMemoryRegistry(), "")
	require.NoError(t, err)
	require.Nil(t, info)

	info, err = Describe(nil, "e1")
	require.NoError(t, err)
	require.Nil(t, info)
}

func TestStaticElementTextAndHighlight(t *testing.T) {
	el := NewStaticElement("edit", "", "notepad")
	el.SetValue("hello")
	text, err := el.Text(1)
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	require.NoError(t, el.Highlight(0xFF0000, 0))
	require.NoError(t, el.Highlight(0x00FF00, 0))
	require.Equal(t, 2, el.Highlights())
}

func TestIsEditable(t *testing.T) {
	require.True(t, IsEditable("edit"))
	require.True(t, IsEditable(""))
	require.False(t, IsEditable("button"))
}
