package activity

// Colors used when no category applies.
const (
	DefaultColor = "#64748b"
	IdleColor    = "#94a3b8"
	PausedColor  = "#cbd5e1"

	UncategorizedName = "Uncategorized"
)

// Category assigns a name and color to windows matching its patterns.
// Position defines match priority; lower positions are tried first.
type Category struct {
	ID             string `json:"id"`
	Position       int    `json:"position"`
	Name           string `json:"name"`
	AppPattern     string `json:"app_pattern"`
	TitlePattern   string `json:"title_pattern"`
	CaseSensitive  bool   `json:"case_sensitive"`
	Color          string `json:"color"`
	DailyGoalSecs  int64  `json:"daily_goal_secs"`
	DailyLimitSecs int64  `json:"daily_limit_secs"`
}

// Uncategorized is returned when no category matches.
func Uncategorized() Category {
	return Category{Name: UncategorizedName, Color: DefaultColor}
}

// SentinelCategory labels idle and paused blocks. ok is false for real apps.
func SentinelCategory(app string) (Category, bool) {
	switch app {
	case IdleApp:
		return Category{Name: IdleTitle, Color: IdleColor}, true
	case PausedApp:
		return Category{Name: PausedTitle, Color: PausedColor}, true
	}
	return Category{}, false
}

// DefaultCategories are seeded into an empty store.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Browser", AppPattern: "firefox|chromium|google-chrome|brave|zen", Color: "#3b82f6"},
		{Name: "Terminal", AppPattern: "gnome-terminal|kitty|alacritty|wezterm|foot|Tilix|konsole", Color: "#10b981"},
		{Name: "Editor", AppPattern: "code|Code|cursor|Cursor|neovim|emacs|sublime|jetbrains", Color: "#8b5cf6"},
		{Name: "Communication", AppPattern: "slack|discord|telegram|signal|teams|zoom", Color: "#f59e0b"},
		{Name: "Files", AppPattern: "nautilus|thunar|dolphin|nemo", Color: "#6366f1"},
		{Name: "Media", AppPattern: "vlc|mpv|spotify|rhythmbox|totem", Color: "#ec4899"},
		{Name: "Office", AppPattern: "libreoffice|soffice|evince|okular", Color: "#14b8a6"},
	}
}

// RuleType selects what a matching filter rule does to a segment.
type RuleType string

const (
	// RuleIgnore drops the segment.
	RuleIgnore RuleType = "ignore"
	// RuleRedact keeps the segment but replaces its title.
	RuleRedact RuleType = "redact"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	return t == RuleIgnore || t == RuleRedact
}

// FilterRule is evaluated against every segment before it is persisted.
type FilterRule struct {
	ID           string   `json:"id"`
	Position     int      `json:"position"`
	Type         RuleType `json:"rule_type"`
	AppPattern   string   `json:"app_pattern"`
	TitlePattern string   `json:"title_pattern"`
}
