package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/nssim/internal/experiment"
	"github.com/san-kum/nssim/internal/metrics"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/timestepping"
)

const (
	historyLen = 200
	frameRate  = 30
)

type TickMsg time.Time

// Builder returns a freshly set up experiment; it is called again on reset.
type Builder func() (*experiment.Experiment, error)

// Model steps a simulation on every tick and draws its state.
type Model struct {
	build Builder
	exp   *experiment.Experiment
	ts    *timestepping.TimeStepping

	canvas        *Canvas
	stepsPerFrame int
	running       bool
	done          bool
	err           error

	hist    *history
	heights scale
}

// history is shared by every copy of Model; the simulation writes to it
// as an observer.
type history struct {
	gravity float64
	report  timestepping.StepReport
	energy  []float64
	active  []int
	trail   [][2]float64
}

func NewModel(build Builder, stepsPerFrame int) (Model, error) {
	if stepsPerFrame < 1 {
		stepsPerFrame = 1
	}
	m := Model{
		build:         build,
		canvas:        NewCanvas(60, 20),
		stepsPerFrame: stepsPerFrame,
		running:       true,
	}
	if err := m.reset(); err != nil {
		return Model{}, err
	}
	m.draw()
	return m, nil
}

func (m Model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.advance(1)
			}
		case "r":
			m.err = m.reset()
		case "+", "=":
			m.stepsPerFrame *= 2
		case "-", "_":
			if m.stepsPerFrame > 1 {
				m.stepsPerFrame /= 2
			}
		}
		m.draw()
	case TickMsg:
		if m.running {
			m.advance(m.stepsPerFrame)
		}
		m.draw()
		return m, tick()
	}
	return m, nil
}

// advance computes up to n steps, stopping at the final time or on error.
func (m *Model) advance(n int) {
	for i := 0; i < n && !m.done && m.err == nil; i++ {
		if !m.ts.Clock().HasNextEvent() {
			m.done = true
			return
		}
		if err := m.ts.ComputeOneStep(); err != nil {
			m.err = err
			m.running = false
			return
		}
	}
}

func (h *history) OnStep(ts *timestepping.TimeStepping, r timestepping.StepReport) {
	h.report = r
	h.energy = push(h.energy, metrics.TotalEnergy(ts.Graph(), h.gravity))
	contacts := 0
	if len(r.Active) > 1 {
		contacts = r.Active[1]
	}
	h.active = pushInt(h.active, contacts)
	if fo, ok := firstOrder(ts.Graph()); ok && len(fo.X) >= 2 {
		h.trail = append(h.trail, [2]float64{fo.X[0], fo.X[1]})
		if len(h.trail) > historyLen {
			h.trail = h.trail[1:]
		}
	}
}

func (m *Model) reset() error {
	exp, err := m.build()
	if err != nil {
		return err
	}
	m.hist = &history{gravity: exp.Model().Gravity()}
	exp.Simulation().AddObserver(m.hist)
	m.exp, m.ts = exp, exp.Simulation()
	m.done, m.err = false, nil
	m.heights = heightScale(exp.Graph(), 4*m.canvas.Height)
	return nil
}

func push(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > historyLen {
		xs = xs[1:]
	}
	return xs
}

func pushInt(xs []int, v int) []int {
	xs = append(xs, v)
	if len(xs) > historyLen {
		xs = xs[1:]
	}
	return xs
}

// heightScale spans the floor up to a margin above the highest body.
func heightScale(g *nsds.Graph, dots int) scale {
	top := 1.0
	for id := 0; id < g.NumberOfSystems(); id++ {
		if ds, ok := g.System(nsds.DSID(id)).(*nsds.LagrangianLinearDS); ok {
			for _, q := range ds.Q {
				top = math.Max(top, q)
			}
		}
	}
	return scale{lo: -0.05 * top, hi: 1.1 * top, n: dots}
}

func firstOrder(g *nsds.Graph) (*nsds.FirstOrderLinearDS, bool) {
	for id := 0; id < g.NumberOfSystems(); id++ {
		if ds, ok := g.System(nsds.DSID(id)).(*nsds.FirstOrderLinearDS); ok {
			return ds, true
		}
	}
	return nil, false
}

func (m *Model) draw() {
	m.canvas.Clear()
	if m.exp == nil {
		return
	}
	if _, ok := firstOrder(m.exp.Graph()); ok {
		m.drawPhase()
		return
	}
	m.drawBodies()
}

// drawBodies draws every Lagrangian coordinate as a ball above the floor.
func (m *Model) drawBodies() {
	w, h := m.canvas.Dots()
	floor := h - 1 - m.heights.dot(0)
	m.canvas.DrawLine(0, floor, w-1, floor)

	var coords []float64
	g := m.exp.Graph()
	for id := 0; id < g.NumberOfSystems(); id++ {
		if ds, ok := g.System(nsds.DSID(id)).(*nsds.LagrangianLinearDS); ok {
			coords = append(coords, ds.Q...)
		}
	}
	for i, q := range coords {
		x := (i + 1) * w / (len(coords) + 1)
		y := h - 1 - m.heights.dot(q)
		m.canvas.DrawDisc(x, y-2, 2)
	}
}

// drawPhase plots the (x0, x1) trail of the first first-order system.
func (m *Model) drawPhase() {
	w, h := m.canvas.Dots()
	bound := 1e-9
	for _, p := range m.hist.trail {
		bound = math.Max(bound, math.Max(math.Abs(p[0]), math.Abs(p[1])))
	}
	sx := scale{lo: -bound, hi: bound, n: w}
	sy := scale{lo: -bound, hi: bound, n: h}
	m.canvas.DrawLine(0, h/2, w-1, h/2)
	m.canvas.DrawLine(w/2, 0, w/2, h-1)
	for i := 1; i < len(m.hist.trail); i++ {
		a, b := m.hist.trail[i-1], m.hist.trail[i]
		m.canvas.DrawLine(sx.dot(a[0]), h-1-sy.dot(a[1]), sx.dot(b[0]), h-1-sy.dot(b[1]))
	}
}

func (m Model) View() string {
	if m.exp == nil {
		return StatusFailed.Render(fmt.Sprintf("setup failed: %v", m.err))
	}
	clock := m.ts.Clock()

	status := StatusRunning.Render("RUNNING")
	switch {
	case m.err != nil:
		status = StatusFailed.Render("FAILED")
	case m.done:
		status = StatusPaused.Render("FINISHED")
	case !m.running:
		status = StatusPaused.Render("PAUSED")
	}

	var stats strings.Builder
	stats.WriteString(headerStyle.Render(strings.ToUpper(m.exp.Model().Name())) + "\n")
	row := func(label, value string) {
		stats.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("status", status)
	row("time", fmt.Sprintf("%.3f / %.3f", m.ts.CurrentTime(), clock.FinalT()))
	stats.WriteString(ProgressBar(m.ts.CurrentTime()/clock.FinalT(), 28) + "\n")
	row("step", fmt.Sprintf("%d", clock.Index()))
	row("newton", fmt.Sprintf("%d it (%s)", m.hist.report.NewtonIterations, m.hist.report.Status))
	row("residu ds", fmt.Sprintf("%.2e", m.hist.report.Residuals.DS))
	row("solver", m.hist.report.SolverStatus.String())
	row("active", fmt.Sprintf("%v", m.hist.report.Active))
	row("speed", fmt.Sprintf("%d steps/frame", m.stepsPerFrame))
	stats.WriteString(Separator(28) + "\n")
	stats.WriteString(MetricLabel.Render("contacts ") + Sparkline(m.hist.active, 28) + "\n")
	if len(m.hist.energy) > 1 {
		stats.WriteString(MetricLabel.Render("energy ") + MetricValue.Render(fmt.Sprintf("%.4f", m.hist.energy[len(m.hist.energy)-1])) + "\n")
		stats.WriteString(graphStyle.Render(asciigraph.Plot(m.hist.energy, asciigraph.Height(6), asciigraph.Width(30))))
	}
	if m.err != nil {
		stats.WriteString("\n" + StatusFailed.Render(m.err.Error()))
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		canvasStyle.Render(m.canvas.String()),
		statsStyle.Render(stats.String()))
	help := helpStyle.Render("space pause · n step · r reset · +/- speed · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, body, help)
}
