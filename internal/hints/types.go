package hints

import "errors"

// LevelCount is the size of the hint ladder.
const LevelCount = 4

var (
	ErrNoHints       = errors.New("no hints available")
	ErrDeclined      = errors.New("final hint declined")
	ErrExhausted     = errors.New("every hint level is unlocked")
	ErrNoChallenge   = errors.New("no active challenge")
	ErrNotPending    = errors.New("no final hint confirmation pending")
	ErrLevelLocked   = errors.New("hint level is not unlocked")
	ErrTargetMissing = errors.New("requested hint level missing from response")
	ErrStale         = errors.New("challenge changed during hint load")
	ErrNoGenerator   = errors.New("no hint generator configured")
)

type Hint struct {
	Level   int    `json:"level"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Progress is the persisted record for one challenge. An UnlockedLevel of 0
// means the watermark has not been initialised.
type Progress struct {
	UnlockedLevel int    `json:"unlockedLevel"`
	Hints         []Hint `json:"hints"`
}

type State int

const (
	Idle State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "idle"
	}
}

type LoadOptions struct {
	// Force regenerates even when hints are already loaded.
	Force bool
	// ResetProgress drops the watermark back to the lowest returned level.
	ResetProgress bool
	// TargetLevel replaces only that level of an existing ladder and
	// unlocks it.
	TargetLevel int
}

// Advance is the result of asking for the next hint.
type Advance struct {
	Level        int
	NeedsConfirm bool
}

type Snapshot struct {
	ChallengeID    string
	State          State
	Hints          []Hint
	UnlockedLevel  int
	VisibleLevel   int
	NextLevel      int
	HighestLevel   int
	ConfirmPending bool
	Err            error
}

// Active returns the hint currently on display.
func (s Snapshot) Active() (Hint, bool) {
	if len(s.Hints) == 0 {
		return Hint{}, false
	}
	for _, h := range s.Hints {
		if h.Level == s.VisibleLevel {
			return h, true
		}
	}
	return s.Hints[0], true
}

// Unlocked returns the hints at or below the watermark.
func (s Snapshot) Unlocked() []Hint {
	out := make([]Hint, 0, len(s.Hints))
	for _, h := range s.Hints {
		if h.Level <= s.UnlockedLevel {
			out = append(out, h)
		}
	}
	return out
}
