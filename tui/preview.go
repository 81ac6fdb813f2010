// Package tui renders the project carousel in a terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zachkp/folio/carousel"
)

// refreshEvery is how often the view is redrawn to pick up auto-advance.
const refreshEvery = 250 * time.Millisecond

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

var deviceKeys = map[string]carousel.Device{
	"d": carousel.Desktop,
	"t": carousel.Tablet,
	"m": carousel.Mobile,
}

// styles
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22d3ee"))
	counterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	tagStyle      = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("#1f2937")).Foreground(lipgloss.Color("#e5e7eb"))
	activeTab     = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#22d3ee"))
	inactiveTab   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	frameStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#374151")).Padding(1, 2)
	fullFrame     = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#22d3ee")).Padding(2, 4)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	dotActive     = lipgloss.NewStyle().Foreground(lipgloss.Color("#22d3ee")).Render("●")
	dotInactive   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4b5563")).Render("○")
	featureBullet = lipgloss.NewStyle().Foreground(lipgloss.Color("#22d3ee")).Render("•")
)

// Preview is the bubbletea model. It owns the controller and closes it on quit.
type Preview struct {
	ctl    *carousel.Controller
	status string
	width  int
}

// NewPreview wraps ctl. The caller starts ctl.
func NewPreview(ctl *carousel.Controller) *Preview {
	return &Preview{ctl: ctl}
}

func (p *Preview) Init() tea.Cmd { return tick() }

func (p *Preview) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tickMsg:
		return p, tick()
	case tea.WindowSizeMsg:
		p.width = m.Width
	case tea.KeyMsg:
		return p.handleKey(m)
	}
	return p, nil
}

func (p *Preview) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	p.status = ""
	key := m.String()
	switch key {
	case "q", "ctrl+c":
		p.ctl.Close()
		return p, tea.Quit
	case "left", "h":
		p.ctl.Previous()
	case "right", "l":
		p.ctl.Next()
	case "f", "enter":
		p.ctl.OpenFullscreen()
	case "esc":
		p.ctl.CloseFullscreen()
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if err := p.ctl.SelectProject(int(key[0] - '1')); err != nil {
			p.status = fmt.Sprintf("no project %s", key)
		}
	default:
		if d, ok := deviceKeys[key]; ok {
			_ = p.ctl.SelectDevice(d)
		}
	}
	return p, nil
}

func (p *Preview) View() string {
	v := p.ctl.View()
	if v.Fullscreen {
		return p.renderFullscreen(v)
	}
	return p.renderCarousel(v)
}

func (p *Preview) renderCarousel(v carousel.View) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(v.Project.Title))
	b.WriteString("  ")
	b.WriteString(counterStyle.Render(v.Position()))
	b.WriteString("\n\n")

	if v.Project.Description != "" {
		b.WriteString(wrap(v.Project.Description, p.width))
		b.WriteString("\n\n")
	}

	tags := make([]string, 0, len(v.Project.Tech))
	for _, t := range v.Project.Tech {
		tags = append(tags, tagStyle.Render(t))
	}
	if len(tags) > 0 {
		b.WriteString(strings.Join(tags, " "))
		b.WriteString("\n\n")
	}

	for _, f := range v.Project.Features {
		b.WriteString(featureBullet + " " + f + "\n")
	}
	if len(v.Project.Features) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(renderTabs(v.Device))
	b.WriteString("\n")
	b.WriteString(counterStyle.Render(v.Screenshot))
	b.WriteString("\n\n")
	b.WriteString(renderDots(v))

	out := frameStyle.Render(b.String()) + "\n"
	if p.status != "" {
		out += statusStyle.Render(p.status) + "\n"
	}
	return out + helpStyle.Render("[←/→] browse  [1-9] jump  [d/t/m] device  [f] fullscreen  [q] quit")
}

func (p *Preview) renderFullscreen(v carousel.View) string {
	body := titleStyle.Render(v.Project.Title) + "\n\n" +
		renderTabs(v.Device) + "\n\n" +
		v.Screenshot
	return fullFrame.Render(body) + "\n" + helpStyle.Render("[esc] close  [d/t/m] device  [q] quit")
}

func renderTabs(current carousel.Device) string {
	tabs := make([]string, 0, len(carousel.Devices))
	for _, d := range carousel.Devices {
		label := string(d)
		if d == current {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, inactiveTab.Render(label))
		}
	}
	return strings.Join(tabs, "  ")
}

func renderDots(v carousel.View) string {
	dots := make([]string, v.Count)
	for i := range dots {
		if i == v.Index {
			dots[i] = dotActive
		} else {
			dots[i] = dotInactive
		}
	}
	return strings.Join(dots, " ")
}

func wrap(s string, width int) string {
	if width <= 10 {
		return s
	}
	return lipgloss.NewStyle().Width(width - 8).Render(s)
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(ctl *carousel.Controller, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewPreview(ctl), opts...).Run()
	return err
}
