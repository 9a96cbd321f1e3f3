package status

import (
	"errors"
	"io"

	"github.com/bnema/outreach-pool/internal/application"
	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

// model renders once and quits; the program runs headless so output can be printed by the caller.
type model struct {
	view   func(styles) string
	styles styles
	output string
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = m.view(m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// Render draws the pool status of every account.
func Render(statuses []application.AccountStatus, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderPool(statuses, opts, s)
	})
}

// RenderCampaign draws one campaign report with its targets.
func RenderCampaign(report application.CampaignReport, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderCampaign(report, opts, s)
	})
}

// RenderCampaigns draws a one-line summary per campaign.
func RenderCampaigns(reports []application.CampaignReport, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderCampaignList(reports, opts, s)
	})
}

func run(view func(styles) string) (string, error) {
	p := tea.NewProgram(
		model{view: view, styles: newStyles()},
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
