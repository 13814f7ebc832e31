package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/types"
)

// maxStepLines bounds the step log shown under the bar.
const maxStepLines = 8

// EventMsg delivers a coordinator event to the model.
type EventMsg completion.Event

// DoneMsg reports that the run has returned.
type DoneMsg struct {
	State   types.CompletionState
	Outcome *types.RunOutcome
	Err     error
}

// ProgressModel is a Bubble Tea model showing a live completion run.
type ProgressModel struct {
	storyID types.StoryID
	runID   string
	cancel  context.CancelFunc

	bar   progress.Model
	state types.CompletionState
	steps []string

	done        bool
	interrupted bool
	outcome     *types.RunOutcome
	err         error
}

// NewProgressModel creates a progress model. cancel is invoked if the user
// quits before the run returns; it may be nil.
func NewProgressModel(storyID types.StoryID, runID string, cancel context.CancelFunc) ProgressModel {
	return ProgressModel{
		storyID: storyID,
		runID:   runID,
		cancel:  cancel,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		state:   types.CompletionState{StoryID: storyID, Status: types.StatusIdle},
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-8, 10), 80)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if !m.done {
				m.interrupted = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, tea.Quit
		}

	case EventMsg:
		m.state = msg.State
		if line := stepLine(completion.Event(msg)); line != "" {
			m.steps = append(m.steps, line)
			if len(m.steps) > maxStepLines {
				m.steps = m.steps[len(m.steps)-maxStepLines:]
			}
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.state = msg.State
		m.outcome = msg.Outcome
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Story Completion"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(label+":"), value))
	}
	row("Story", ValueStyle.Render(string(m.storyID)))
	row("Run", ValueStyle.Render(m.runID))
	row("Status", StatusStyle(m.state.Status).Render(string(m.state.Status)))
	row("Steps", ValueStyle.Render(fmt.Sprintf("%d/%d", m.state.CompletedSteps, m.state.TotalSteps)))

	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.state.Progress / 100))
	b.WriteString("\n\n")

	for _, line := range m.steps {
		b.WriteString(line)
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString("\n" + ErrorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.outcome != nil && m.outcome.Status == types.OutcomeCompleted:
		b.WriteString("\n" + SuccessStyle.Render(m.outcome.Message) + "\n")
	case m.outcome != nil:
		b.WriteString("\n" + ErrorStyle.Render(string(m.outcome.Status)+": "+m.outcome.Message) + "\n")
	case m.interrupted:
		b.WriteString("\n" + WarningStyle.Render("interrupted") + "\n")
	}

	content := BoxStyle.Render(b.String())
	if m.done {
		return content + "\n"
	}
	return content + "\n" + HelpStyle.Render("Press q or Ctrl+C to cancel the run")
}

// State returns the last coordinator state the model received.
func (m ProgressModel) State() types.CompletionState {
	return m.state
}

// Interrupted reports whether the user quit before the run returned.
func (m ProgressModel) Interrupted() bool {
	return m.interrupted
}

func stepLine(e completion.Event) string {
	switch e.Type {
	case completion.EventRunStarted:
		return MutedStyle.Render(fmt.Sprintf("planned %d batches over %d slots", e.Plan.BatchCount(), e.Plan.TotalSlots))
	case completion.EventBatchCommitted:
		note := "revealed"
		if !e.Receipt.Applied {
			note = "already revealed"
		}
		return SuccessStyle.Render("✓") + fmt.Sprintf(" batch %s %s", e.Range, MutedStyle.Render(note))
	case completion.EventBatchFailed:
		return ErrorStyle.Render("✗") + fmt.Sprintf(" batch %s: %v", e.Range, e.Err)
	case completion.EventFinalized:
		return SuccessStyle.Render("✓") + " finalized " + MutedStyle.Render(e.Receipt.TxHash)
	case completion.EventFinalizeFailed:
		return ErrorStyle.Render("✗") + fmt.Sprintf(" finalize: %v", e.Err)
	default:
		return ""
	}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Progress drives a ProgressModel from a running completion.
type Progress struct {
	program *tea.Program
}

// NewProgress creates the program for a run.
func NewProgress(storyID types.StoryID, runID string, cancel context.CancelFunc, opts ...tea.ProgramOption) *Progress {
	return &Progress{program: tea.NewProgram(NewProgressModel(storyID, runID, cancel), opts...)}
}

// Observe forwards a coordinator event. It has the completion.Observer
// signature and returns once the program has received the event or exited.
func (p *Progress) Observe(e completion.Event) {
	p.program.Send(EventMsg(e))
}

// Finish tells the program the run has returned.
func (p *Progress) Finish(msg DoneMsg) {
	p.program.Send(msg)
}

// Run runs the program until the run finishes or the user quits.
func (p *Progress) Run() (ProgressModel, error) {
	final, err := p.program.Run()
	if err != nil {
		return ProgressModel{}, err
	}
	m, _ := final.(ProgressModel)
	return m, nil
}
