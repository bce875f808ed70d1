package uistate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_FlagsAndPrefs(t *testing.T) {
	s := NewStore()

	require.False(t, s.Flag("s1", "sidebar_open"))
	s.SetFlag("s1", "sidebar_open", true)
	require.True(t, s.Flag("s1", "sidebar_open"))
	require.False(t, s.Flag("s2", "sidebar_open"))

	require.Empty(t, s.Pref("s1", ThemeKey))
	s.SetPref("s1", ThemeKey, "dark")
	require.Equal(t, "dark", s.Pref("s1", ThemeKey))
}

func TestStore_Notifications(t *testing.T) {
	s := NewStore()
	s.Notify("s1", Notification{Level: "info", Message: "saved"})
	s.Notify("s1", Notification{Level: "error", Message: "failed"})

	got := s.DrainNotifications("s1")
	require.Len(t, got, 2)
	require.Equal(t, "saved", got[0].Message)
	// drained queue stays empty
	require.Empty(t, s.DrainNotifications("s1"))
}

func TestStore_ResetKeepsTheme(t *testing.T) {
	s := NewStore()
	s.SetFlag("s1", "sidebar_open", true)
	s.SetPref("s1", ThemeKey, "dark")
	s.SetPref("s1", "rows_per_page", "50")
	s.Notify("s1", Notification{Level: "info", Message: "hi"})

	s.Reset("s1")

	require.False(t, s.Flag("s1", "sidebar_open"))
	require.Empty(t, s.DrainNotifications("s1"))
	require.Empty(t, s.Pref("s1", "rows_per_page"))
	require.Equal(t, "dark", s.Pref("s1", ThemeKey))
}

func TestStore_ResetWithoutTheme(t *testing.T) {
	s := NewStore()
	s.SetPref("s1", "rows_per_page", "50")

	s.Reset("s1")

	require.Empty(t, s.Pref("s1", "rows_per_page"))
	require.Empty(t, s.Pref("s1", ThemeKey))
}
