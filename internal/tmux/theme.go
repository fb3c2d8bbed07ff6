package tmux

import (
	"hash/fnv"
)

// Theme is the status bar styling for a taskmux session.
type Theme struct {
	Name string
	BG   string
	FG   string
}

// Style returns the tmux style string for this theme (e.g. "bg=#1e3a5f,fg=#e0e0e0").
func (t Theme) Style() string {
	return "bg=" + t.BG + ",fg=" + t.FG
}

// DefaultPalette is the set of distinct status bar themes sessions are hashed onto.
var DefaultPalette = []Theme{
	{Name: "ocean", BG: "#1e3a5f", FG: "#e0e0e0"},
	{Name: "forest", BG: "#2d5a3d", FG: "#e0e0e0"},
	{Name: "rust", BG: "#8b4513", FG: "#f5f5dc"},
	{Name: "plum", BG: "#4a3050", FG: "#e0e0e0"},
	{Name: "slate", BG: "#4a5568", FG: "#e0e0e0"},
	{Name: "ember", BG: "#b33a00", FG: "#f5f5dc"},
	{Name: "midnight", BG: "#1a1a2e", FG: "#c0c0c0"},
	{Name: "wine", BG: "#722f37", FG: "#f5f5dc"},
	{Name: "teal", BG: "#0d5c63", FG: "#e0e0e0"},
	{Name: "copper", BG: "#6d4c41", FG: "#f5f5dc"},
}

// GetThemeByName finds a theme in the default palette, or nil.
func GetThemeByName(name string) *Theme {
	for _, t := range DefaultPalette {
		if t.Name == name {
			return &t
		}
	}
	return nil
}

// AssignTheme picks a stable theme for a session name.
func AssignTheme(session string) Theme {
	return AssignThemeFromPalette(session, DefaultPalette)
}

// AssignThemeFromPalette picks a theme from palette by hashing session.
func AssignThemeFromPalette(session string, palette []Theme) Theme {
	if len(palette) == 0 {
		return DefaultPalette[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(session))
	return palette[h.Sum32()%uint32(len(palette))]
}

// ResolveTheme returns the named theme when it exists, otherwise the hashed one.
func ResolveTheme(session, name string) Theme {
	if name != "" {
		if t := GetThemeByName(name); t != nil {
			return *t
		}
	}
	return AssignTheme(session)
}
