package ui

import (
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/progress"
	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/harmonica"
	clog "github.com/charmbracelet/log"
)

type applyMsg struct {
	fn func(*Root)
}

type clockMsg time.Time
type animateMsg time.Time

type editorMsg struct {
	argv []string
}

type editorDoneMsg struct {
	err error
}

type sessionKeyMap struct {
	Hints    key.Binding
	Problem  key.Binding
	Edit     key.Binding
	Generate key.Binding
	Run      key.Binding
	Submit   key.Binding
	Retire   key.Binding
	Menu     key.Binding
}

func (k sessionKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Hints, k.Problem, k.Edit, k.Generate, k.Run, k.Submit, k.Retire, k.Menu}
}

func (k sessionKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Hints, k.Problem, k.Edit, k.Generate}, {k.Run, k.Submit, k.Retire, k.Menu}}
}

type listKeyMap struct {
	Open    key.Binding
	Refresh key.Binding
	Stats   key.Binding
	Quit    key.Binding
}

func (k listKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Refresh, k.Stats, k.Quit}
}

func (k listKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type hintButton int

const (
	hintPrev hintButton = iota
	hintNext
	hintMore
	hintRegenerate
	hintClose
)

func (b hintButton) label() string {
	switch b {
	case hintPrev:
		return "Prev"
	case hintNext:
		return "Next"
	case hintMore:
		return "More hint"
	case hintRegenerate:
		return "Regenerate"
	default:
		return "Close"
	}
}

type Root struct {
	theme       Theme
	ascii       bool
	debug       bool
	ctrl        Controller
	motionLevel string

	mu      sync.Mutex
	program *tea.Program
	running bool

	screen Screen
	layout LayoutMode
	cols   int
	rows   int

	catalog   CatalogState
	listIndex int
	session   SessionState

	hints        HintsState
	hintFocus    hintButton
	confirmIndex int
	explanation  ExplanationState
	stats        StatsState
	problemOpen  bool
	menuOpen     bool
	menuIndex    int
	scroll       int

	setupMsg     string
	setupDetails string
	statusFlash  string

	help       help.Model
	keys       sessionKeyMap
	listKeys   listKeyMap
	stageBar   progress.Model
	spin       spinner.Model
	markdown   *glamour.TermRenderer
	mdWidth    int
	logger     *clog.Logger
	spring     harmonica.Spring
	overlayPos float64
	overlayVel float64

	// dispatch runs controller callbacks; clip writes the system clipboard.
	dispatch func(func())
	clip     func(string) error

	lastInputEvent string
}

type Options struct {
	ASCIIOnly    bool
	Debug        bool
	StyleVariant string
	MotionLevel  string
}

func New(opts Options) *Root {
	logger := clog.NewWithOptions(os.Stderr, clog.Options{Prefix: "codedojo-ui", Level: clog.WarnLevel})
	if opts.Debug {
		logger.SetLevel(clog.DebugLevel)
	}

	h := help.New()
	h.Styles = help.DefaultDarkStyles()
	motionLevel := normalizeMotionLevel(opts.MotionLevel)
	theme := ThemeForVariant(normalizeStyleVariant(opts.StyleVariant))
	spring := harmonica.NewSpring(harmonica.FPS(60), 10.0, 0.8)
	switch motionLevel {
	case "reduced":
		spring = harmonica.NewSpring(harmonica.FPS(30), 9.0, 0.92)
	case "off":
		spring = harmonica.NewSpring(harmonica.FPS(60), 1000.0, 1.0)
	}
	stageBar := progress.New(
		progress.WithWidth(20),
		progress.WithColors(lipgloss.Color("#5EC2FF"), lipgloss.Color("#79E6A6")),
		progress.WithScaled(true),
	)
	spin := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(theme.Accent),
	)

	r := &Root{
		theme:       theme,
		ascii:       opts.ASCIIOnly,
		debug:       opts.Debug,
		motionLevel: motionLevel,
		screen:      ScreenChallenges,
		layout:      LayoutWide,
		cols:        120,
		rows:        30,
		hintFocus:   hintMore,
		help:        h,
		stageBar:    stageBar,
		spin:        spin,
		logger:      logger,
		spring:      spring,
		dispatch:    func(fn func()) { go fn() },
		clip:        clipboard.WriteAll,
	}
	r.keys = sessionKeyMap{
		Hints:    key.NewBinding(key.WithKeys("f1"), key.WithHelp("F1", "Hints")),
		Problem:  key.NewBinding(key.WithKeys("f2"), key.WithHelp("F2", "Problem")),
		Edit:     key.NewBinding(key.WithKeys("f3"), key.WithHelp("F3", "Edit")),
		Generate: key.NewBinding(key.WithKeys("f4"), key.WithHelp("F4", "Generate")),
		Run:      key.NewBinding(key.WithKeys("f5"), key.WithHelp("F5", "Run")),
		Submit:   key.NewBinding(key.WithKeys("f6"), key.WithHelp("F6", "Submit")),
		Retire:   key.NewBinding(key.WithKeys("f7"), key.WithHelp("F7", "Retire")),
		Menu:     key.NewBinding(key.WithKeys("f10"), key.WithHelp("F10", "Menu")),
	}
	r.listKeys = listKeyMap{
		Open:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "Open")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "Refresh")),
		Stats:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Stats")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "Quit")),
	}
	return r
}

func (r *Root) Init() tea.Cmd {
	return tea.Batch(clockTickCmd(), spinnerTickCmd(r.spin))
}

func (r *Root) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onModelPanic("update", rec, msg)
			model = r
			cmd = nil
		}
	}()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.cols = msg.Width
		r.rows = msg.Height
		r.layout = sessionLayout(r.cols, r.rows)
		return r, nil
	case applyMsg:
		if msg.fn != nil {
			msg.fn(r)
		}
		return r, r.animateIfNeeded()
	case clockMsg:
		return r, clockTickCmd()
	case animateMsg:
		target := r.overlayTarget()
		r.overlayPos, r.overlayVel = r.spring.Update(r.overlayPos, r.overlayVel, target)
		if r.shouldAnimate(target) {
			return r, animateTickCmd()
		}
		r.overlayPos = target
		r.overlayVel = 0
		return r, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		r.spin, cmd = r.spin.Update(msg)
		return r, cmd
	case editorMsg:
		if len(msg.argv) == 0 {
			return r, nil
		}
		c := exec.Command(msg.argv[0], msg.argv[1:]...)
		return r, tea.ExecProcess(c, func(err error) tea.Msg { return editorDoneMsg{err: err} })
	case editorDoneMsg:
		err := msg.err
		r.dispatchController(func(c Controller) { c.OnEditorExited(err) })
		return r, nil
	case tea.KeyPressMsg:
		return r.handleKey(msg)
	}
	return r, nil
}

func (r *Root) View() (view tea.View) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onModelPanic("view", rec, nil)
			width := max(1, r.cols)
			view = tea.NewView(r.theme.Fail.Width(width).Render(trimForWidth("UI recovered from a rendering panic. Check logs.", width-1)))
		}
	}()

	v := tea.NewView(r.render())
	v.AltScreen = true
	return v
}

func (r *Root) render() string {
	if r.cols < 1 {
		r.cols = 120
	}
	if r.rows < 1 {
		r.rows = 30
	}

	var base string
	switch r.screen {
	case ScreenSession:
		base = r.renderSession()
	default:
		base = r.renderChallenges()
	}
	if overlay, rowOffset := r.renderOverlay(); overlay != "" {
		base = composeOverlaySlide(base, overlay, r.cols, r.rows, rowOffset)
	}
	return base
}

func (r *Root) Run() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	p := tea.NewProgram(r)
	r.program = p
	r.running = true
	r.mu.Unlock()

	_, err := p.Run()

	r.mu.Lock()
	r.program = nil
	r.running = false
	r.mu.Unlock()
	return err
}

func (r *Root) Stop() {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}

func (r *Root) SetController(c Controller) {
	r.ctrl = c
}

func (r *Root) SetScreen(screen Screen) {
	r.apply(func(m *Root) {
		m.screen = screen
		m.closeAllOverlays()
		if screen == ScreenChallenges {
			m.session = SessionState{}
		}
	})
}

func (r *Root) SetCatalog(state CatalogState) {
	r.apply(func(m *Root) {
		m.catalog = state
		m.catalog.Items = append([]ChallengeRow(nil), state.Items...)
		m.listIndex = min(m.listIndex, max(0, len(m.catalog.Items)-1))
	})
}

func (r *Root) SetSession(state SessionState) {
	r.apply(func(m *Root) {
		if state.StartedAt.IsZero() {
			state.StartedAt = m.session.StartedAt
		}
		if state.ChallengeID != m.session.ChallengeID {
			m.setupMsg, m.setupDetails = "", ""
		}
		m.session = state
	})
}

func (r *Root) SetHints(state HintsState) {
	r.apply(func(m *Root) {
		refocus := (state.Open && !m.hints.Open) || (m.hints.Loading && !state.Loading)
		if !state.ConfirmFinal || !m.hints.ConfirmFinal {
			m.confirmIndex = 0
		}
		m.hints = state
		if refocus {
			m.hintFocus = hintMore
		}
		m.syncHintFocus()
	})
}

func (r *Root) SetExplanation(state ExplanationState) {
	r.apply(func(m *Root) {
		if state.Open && !m.explanation.Open {
			m.scroll = 0
		}
		m.explanation = state
	})
}

func (r *Root) SetStats(state StatsState) {
	r.apply(func(m *Root) {
		m.stats = state
	})
}

func (r *Root) SetSetupError(msg, details string) {
	r.apply(func(m *Root) {
		m.setupMsg = msg
		m.setupDetails = details
	})
}

// OpenEditor suspends the program and runs argv in the foreground terminal.
func (r *Root) OpenEditor(argv []string) {
	r.send(editorMsg{argv: append([]string(nil), argv...)})
}

func (r *Root) FlashStatus(msg string) {
	r.apply(func(m *Root) {
		m.statusFlash = msg
	})
}

func (r *Root) apply(fn func(*Root)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	p := r.program
	running := r.running
	if !running || p == nil {
		fn(r)
		_ = r.animateIfNeeded()
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	p.Send(applyMsg{fn: fn})
}

func (r *Root) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	running := r.running
	r.mu.Unlock()
	if !running || p == nil {
		r.logger.Debug("ui.send_dropped", "type", fmt.Sprintf("%T", msg))
		return
	}
	p.Send(msg)
}

func (r *Root) dispatchController(fn func(Controller)) {
	if fn == nil || r.ctrl == nil {
		return
	}
	ctrl := r.ctrl
	r.dispatch(func() { fn(ctrl) })
}

func (r *Root) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	r.recordInputEvent(fmt.Sprintf("key:%v mod:%v text:%q", msg.Code, msg.Mod, msg.Text))

	if key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+q"))) {
		r.dispatchController(func(c Controller) { c.OnQuit() })
		return r, nil
	}
	if r.overlayActive() {
		model, cmd := r.handleOverlayKey(msg)
		return model, tea.Batch(cmd, r.animateIfNeeded())
	}
	switch r.screen {
	case ScreenSession:
		model, cmd := r.handleSessionKey(msg)
		return model, tea.Batch(cmd, r.animateIfNeeded())
	default:
		return r.handleListKey(msg)
	}
}

func (r *Root) handleListKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	n := len(r.catalog.Items)
	switch {
	case msg.Code == tea.KeyUp || (msg.Mod == 0 && msg.Code == 'k'):
		r.listIndex = wrapIndex(r.listIndex-1, n)
	case msg.Code == tea.KeyDown || (msg.Mod == 0 && msg.Code == 'j'):
		r.listIndex = wrapIndex(r.listIndex+1, n)
	case key.Matches(msg, r.listKeys.Open):
		if n == 0 {
			return r, nil
		}
		id := r.catalog.Items[r.listIndex].ID
		r.dispatchController(func(c Controller) { c.OnOpenChallenge(id) })
	case key.Matches(msg, r.listKeys.Refresh):
		r.dispatchController(func(c Controller) { c.OnRefreshCatalog() })
	case key.Matches(msg, r.listKeys.Stats):
		r.dispatchController(func(c Controller) { c.OnOpenStats() })
	case key.Matches(msg, r.listKeys.Quit):
		r.dispatchController(func(c Controller) { c.OnQuit() })
	}
	return r, nil
}

func (r *Root) handleSessionKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, r.keys.Hints):
		r.hints.Open = true
		if len(r.hints.Levels) == 0 {
			r.hints.Loading = true
		}
		r.hintFocus = hintMore
		r.syncHintFocus()
		r.dispatchController(func(c Controller) { c.OnOpenHints() })
	case key.Matches(msg, r.keys.Problem):
		r.problemOpen = true
		r.scroll = 0
	case key.Matches(msg, r.keys.Edit):
		r.dispatchController(func(c Controller) { c.OnEditCode() })
	case key.Matches(msg, r.keys.Generate):
		if r.session.Generating {
			return r, nil
		}
		r.session.Generating = true
		r.dispatchController(func(c Controller) { c.OnGenerateCode() })
	case key.Matches(msg, r.keys.Run):
		if r.session.Running {
			return r, nil
		}
		r.session.Running = true
		r.session.Results = nil
		r.dispatchController(func(c Controller) { c.OnRunTests() })
	case key.Matches(msg, r.keys.Submit):
		if !r.session.CanSubmit {
			r.statusFlash = "Every test must pass before you can submit"
			return r, nil
		}
		r.dispatchController(func(c Controller) { c.OnSubmit() })
	case key.Matches(msg, r.keys.Retire):
		if !r.session.CanRetire {
			r.statusFlash = "Retire opens once you start writing code"
			return r, nil
		}
		r.dispatchController(func(c Controller) { c.OnRetire() })
	case key.Matches(msg, r.keys.Menu):
		r.menuOpen = true
		r.menuIndex = 0
	}
	return r, nil
}

func (r *Root) handleOverlayKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	escape := msg.Code == tea.KeyEsc || msg.Code == tea.KeyEscape
	quit := escape || (msg.Mod == 0 && (msg.Code == 'q' || msg.Code == 'Q'))

	switch r.topOverlay() {
	case "confirm":
		switch {
		case escape:
			r.cancelFinalHint()
		case msg.Code == tea.KeyLeft, msg.Code == tea.KeyRight, msg.Code == tea.KeyTab:
			r.confirmIndex = 1 - r.confirmIndex
		case msg.Code == tea.KeyEnter:
			if r.confirmIndex == 1 {
				r.hints.ConfirmFinal = false
				r.dispatchController(func(c Controller) { c.OnConfirmFinalHint() })
			} else {
				r.cancelFinalHint()
			}
		}
	case "hints":
		return r.handleHintKey(msg)
	case "explanation":
		switch {
		case quit:
			r.explanation.Open = false
		case msg.Mod == 0 && msg.Code == 'y':
			return r, r.copyText("code", r.explanation.Code)
		case msg.Mod == 0 && msg.Code == 'p':
			return r, r.copyText("patch", r.explanation.Patch)
		default:
			r.handleScrollKey(msg)
		}
	case "stats":
		if quit {
			r.stats.Open = false
		}
	case "problem":
		switch {
		case quit, key.Matches(msg, r.keys.Problem):
			r.problemOpen = false
		default:
			r.handleScrollKey(msg)
		}
	case "menu":
		items := r.menuItems()
		switch {
		case quit, key.Matches(msg, r.keys.Menu):
			r.menuOpen = false
		case msg.Code == tea.KeyUp:
			r.menuIndex = wrapIndex(r.menuIndex-1, len(items))
		case msg.Code == tea.KeyDown, msg.Code == tea.KeyTab:
			r.menuIndex = wrapIndex(r.menuIndex+1, len(items))
		case msg.Code == tea.KeyEnter:
			r.activateMenuItem(items[r.menuIndex])
		}
	}
	return r, nil
}

// handleHintKey keeps focus inside the hint panel: Tab and Shift+Tab cycle
// its enabled controls, Enter activates, Esc closes. Every other key is
// swallowed.
func (r *Root) handleHintKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Code == tea.KeyEsc || msg.Code == tea.KeyEscape:
		r.activateHintButton(hintClose)
	case msg.Code == tea.KeyTab && msg.Mod&tea.ModShift != 0:
		r.moveHintFocus(-1)
	case msg.Code == tea.KeyTab:
		r.moveHintFocus(1)
	case msg.Code == tea.KeyEnter:
		r.activateHintButton(r.hintFocus)
	case msg.Code == tea.KeyLeft && r.hints.CanPrev:
		r.activateHintButton(hintPrev)
	case msg.Code == tea.KeyRight && r.hints.CanNext:
		r.activateHintButton(hintNext)
	}
	return r, nil
}

func (r *Root) hintButtons() []hintButton {
	out := make([]hintButton, 0, 5)
	if r.hints.CanPrev {
		out = append(out, hintPrev)
	}
	if r.hints.CanNext {
		out = append(out, hintNext)
	}
	if r.hints.CanMore && !r.hints.Loading {
		out = append(out, hintMore)
	}
	if !r.hints.Loading {
		out = append(out, hintRegenerate)
	}
	return append(out, hintClose)
}

func (r *Root) syncHintFocus() {
	buttons := r.hintButtons()
	for _, b := range buttons {
		if b == r.hintFocus {
			return
		}
	}
	r.hintFocus = hintClose
	for _, b := range buttons {
		if b == hintMore || b == hintNext {
			r.hintFocus = b
			return
		}
	}
}

func (r *Root) moveHintFocus(delta int) {
	buttons := r.hintButtons()
	idx := 0
	for i, b := range buttons {
		if b == r.hintFocus {
			idx = i
			break
		}
	}
	r.hintFocus = buttons[wrapIndex(idx+delta, len(buttons))]
}

func (r *Root) activateHintButton(b hintButton) {
	switch b {
	case hintPrev:
		r.dispatchController(func(c Controller) { c.OnHintStep(-1) })
	case hintNext:
		r.dispatchController(func(c Controller) { c.OnHintStep(1) })
	case hintMore:
		r.hints.Loading = true
		r.syncHintFocus()
		r.dispatchController(func(c Controller) { c.OnMoreHint() })
	case hintRegenerate:
		r.hints.Loading = true
		r.syncHintFocus()
		r.dispatchController(func(c Controller) { c.OnRegenerateHints() })
	default:
		r.hints.Open = false
		r.hints.ConfirmFinal = false
		r.dispatchController(func(c Controller) { c.OnCloseHints() })
	}
}

func (r *Root) cancelFinalHint() {
	r.hints.ConfirmFinal = false
	r.confirmIndex = 0
	r.dispatchController(func(c Controller) { c.OnCancelFinalHint() })
}

func (r *Root) handleScrollKey(msg tea.KeyPressMsg) {
	switch msg.Code {
	case tea.KeyUp:
		r.scroll = max(0, r.scroll-1)
	case tea.KeyDown:
		r.scroll++
	case tea.KeyPgUp:
		r.scroll = max(0, r.scroll-10)
	case tea.KeyPgDown:
		r.scroll += 10
	}
}

func (r *Root) copyText(label, text string) tea.Cmd {
	if strings.TrimSpace(text) == "" {
		r.statusFlash = "Nothing to copy"
		return nil
	}
	if err := r.clip(text); err != nil {
		r.logger.Debug("ui.clipboard_fallback", "err", err)
		r.statusFlash = "Copied " + label + " via terminal"
		return tea.SetClipboard(text)
	}
	r.statusFlash = "Copied " + label
	return nil
}

type menuItem struct {
	ID    string
	Label string
}

func (r *Root) menuItems() []menuItem {
	return []menuItem{
		{ID: "resume", Label: "Resume"},
		{ID: "list", Label: "Back to challenge list"},
		{ID: "stats", Label: "Stats"},
		{ID: "quit", Label: "Quit"},
	}
}

func (r *Root) activateMenuItem(item menuItem) {
	r.menuOpen = false
	switch item.ID {
	case "list":
		r.dispatchController(func(c Controller) { c.OnBackToList() })
	case "stats":
		r.dispatchController(func(c Controller) { c.OnOpenStats() })
	case "quit":
		r.dispatchController(func(c Controller) { c.OnQuit() })
	}
}

func (r *Root) topOverlay() string {
	switch {
	case r.hints.Open && r.hints.ConfirmFinal:
		return "confirm"
	case r.explanation.Open:
		return "explanation"
	case r.stats.Open:
		return "stats"
	case r.problemOpen:
		return "problem"
	case r.hints.Open:
		return "hints"
	case r.menuOpen:
		return "menu"
	}
	return ""
}

func (r *Root) overlayActive() bool {
	return r.topOverlay() != ""
}

func (r *Root) closeAllOverlays() {
	r.hints.Open = false
	r.hints.ConfirmFinal = false
	r.explanation.Open = false
	r.stats.Open = false
	r.problemOpen = false
	r.menuOpen = false
}

func (r *Root) overlayTarget() float64 {
	if r.overlayActive() {
		return 1
	}
	return 0
}

func (r *Root) animateIfNeeded() tea.Cmd {
	if r.motionLevel == "off" {
		r.overlayPos = r.overlayTarget()
		r.overlayVel = 0
		return nil
	}
	if r.shouldAnimate(r.overlayTarget()) {
		return animateTickCmd()
	}
	return nil
}

func (r *Root) shouldAnimate(target float64) bool {
	if r.motionLevel == "off" {
		return false
	}
	return abs(r.overlayPos-target) > 0.001 || abs(r.overlayVel) > 0.001
}

func clockTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func animateTickCmd() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return animateMsg(t) })
}

func spinnerTickCmd(model spinner.Model) tea.Cmd {
	return func() tea.Msg {
		return model.Tick()
	}
}

func normalizeStyleVariant(v string) string {
	switch strings.TrimSpace(v) {
	case "night", "paper", "retro":
		return strings.TrimSpace(v)
	default:
		return "night"
	}
}

func normalizeMotionLevel(v string) string {
	switch strings.TrimSpace(v) {
	case "off", "reduced", "full":
		return strings.TrimSpace(v)
	default:
		return "full"
	}
}

func (r *Root) recordInputEvent(event string) {
	r.lastInputEvent = trimForWidth(strings.TrimSpace(event), 160)
}

func (r *Root) onModelPanic(where string, recovered any, msg tea.Msg) {
	if r.statusFlash == "" {
		r.statusFlash = "Recovered UI panic"
	}
	msgType := ""
	if msg != nil {
		msgType = fmt.Sprintf("%T", msg)
	}
	r.logger.Error("ui.panic_recovered",
		"where", where,
		"panic", fmt.Sprintf("%v", recovered),
		"message_type", msgType,
		"screen", r.screen,
		"overlay", r.topOverlay(),
		"last_input", r.lastInputEvent,
		"stack", string(debug.Stack()),
	)
}

var _ tea.Model = (*Root)(nil)
var _ View = (*Root)(nil)
