package status

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/afk-farmer/internal/application"
	"github.com/bnema/afk-farmer/internal/domain"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

// fleetOrder is the order status counts are printed in.
var fleetOrder = []domain.Status{
	domain.StatusFarming,
	domain.StatusResting,
	domain.StatusStarting,
	domain.StatusStopped,
	domain.StatusIdle,
}

type renderReadyMsg struct{}

// fleet totals every session handed to Render, including the ones hidden
// by RunningOnly.
type fleet struct {
	total    int
	running  int
	byStatus map[domain.Status]int
	ok       int64
	failed   int64
}

func summarize(sessions []application.Snapshot) fleet {
	f := fleet{total: len(sessions), byStatus: map[domain.Status]int{}}
	for _, snap := range sessions {
		if snap.Running {
			f.running++
		}
		f.byStatus[snap.Status]++
		f.ok += snap.HeartbeatsOK
		f.failed += snap.HeartbeatsFailed
	}
	return f
}

func (f fleet) successRate() float64 {
	return domain.SuccessRate(f.ok, f.failed)
}

type model struct {
	fleet   fleet
	visible []application.Snapshot
	opts    RenderOptions
	styles  styles
	output  string
}

func newModel(sessions []application.Snapshot, opts RenderOptions) model {
	visible := sessions
	if opts.RunningOnly {
		visible = make([]application.Snapshot, 0, len(sessions))
		for _, snap := range sessions {
			if snap.Running {
				visible = append(visible, snap)
			}
		}
	}

	return model{
		fleet:   summarize(sessions),
		visible: visible,
		opts:    opts,
		styles:  newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = renderView(m.fleet, m.visible, m.opts, m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// Render lays out session snapshots as a static block of text headed by a
// summary of the whole fleet.
func Render(sessions []application.Snapshot, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newModel(sessions, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
