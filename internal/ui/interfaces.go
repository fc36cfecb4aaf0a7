package ui

import (
	"time"

	"codedojo/internal/content"
)

// Controller receives user intents. Every callback runs off the render
// goroutine and may block on the network.
type Controller interface {
	OnOpenChallenge(id string)
	OnBackToList()
	OnRefreshCatalog()
	OnOpenHints()
	OnCloseHints()
	OnHintStep(delta int)
	OnMoreHint()
	OnConfirmFinalHint()
	OnCancelFinalHint()
	OnRegenerateHints()
	OnEditCode()
	OnEditorExited(err error)
	OnGenerateCode()
	OnRunTests()
	OnSubmit()
	OnRetire()
	OnOpenStats()
	OnQuit()
}

type View interface {
	Run() error
	Stop()
	SetController(Controller)
	SetScreen(screen Screen)
	SetCatalog(state CatalogState)
	SetSession(state SessionState)
	SetHints(state HintsState)
	SetExplanation(state ExplanationState)
	SetStats(state StatsState)
	SetSetupError(msg, details string)
	OpenEditor(argv []string)
	FlashStatus(msg string)
}

type Screen int

const (
	ScreenChallenges Screen = iota
	ScreenSession
)

type LayoutMode int

const (
	LayoutWide LayoutMode = iota
	LayoutMedium
	LayoutTooSmall
)

type ChallengeRow struct {
	ID         string
	Title      string
	Difficulty string
	Summary    string
	Solved     bool
	BestScore  int
	LastPlayed string
}

type CatalogState struct {
	Items   []ChallengeRow
	Source  string
	Totals  string
	Loading bool
}

type ResultRow struct {
	Case    int
	Status  string
	Message string
}

type SessionState struct {
	ChallengeID  string
	Title        string
	Difficulty   string
	Instructions string
	Examples     string
	Stage        int
	Stages       []string
	Code         string
	CodePath     string
	Notes        string
	Results      []ResultRow
	Summary      string
	CanSubmit    bool
	CanRetire    bool
	Running      bool
	Generating   bool
	Explaining   bool
	HintsUsed    int
	FailedRuns   int
	StartedAt    time.Time
}

type HintLevelRow struct {
	Level    int
	Title    string
	Unlocked bool
	Current  bool
}

type HintsState struct {
	Open    bool
	Loading bool
	Levels  []HintLevelRow
	Title   string
	Body    string
	CanPrev bool
	CanNext bool
	CanMore bool
	// ConfirmFinal shows the reveal confirmation above the hint panel.
	ConfirmFinal bool
	Err          string
}

type DiffLine struct {
	Marker string
	Text   string
}

type ExplanationState struct {
	Open   bool
	Title  string
	Score  string
	Notice string
	Diff   []DiffLine
	Body   []content.Node
	Code   string
	Patch  string
}

type StatRow struct {
	Label string
	Value string
}

type StatsState struct {
	Open   bool
	Rows   []StatRow
	Recent []string
}
