package viz

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/nssim/internal/experiment"
	"github.com/san-kum/nssim/internal/logging"
	"github.com/san-kum/nssim/internal/timestepping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanvas_SetAndClear(t *testing.T) {
	c := NewCanvas(4, 2)
	w, h := c.Dots()
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)

	c.Set(3, 5)
	assert.True(t, c.IsSet(3, 5))
	assert.False(t, c.IsSet(2, 5))
	c.Set(-1, 0)
	c.Set(100, 100)

	c.Clear()
	assert.False(t, c.IsSet(3, 5))
	assert.Equal(t, 2, strings.Count(c.String(), "\n"))
}

func TestCanvas_DrawLineEndpoints(t *testing.T) {
	c := NewCanvas(10, 5)
	c.DrawLine(0, 0, 19, 19)
	assert.True(t, c.IsSet(0, 0))
	assert.True(t, c.IsSet(19, 19))
	assert.True(t, c.IsSet(10, 10))
}

func TestCanvas_DrawDisc(t *testing.T) {
	c := NewCanvas(10, 5)
	c.DrawDisc(10, 10, 2)
	assert.True(t, c.IsSet(10, 10))
	assert.True(t, c.IsSet(12, 10))
	assert.True(t, c.IsSet(10, 8))
	assert.False(t, c.IsSet(12, 12))
}

func TestScale(t *testing.T) {
	s := scale{lo: 0, hi: 1, n: 11}
	assert.Equal(t, 0, s.dot(0))
	assert.Equal(t, 5, s.dot(0.5))
	assert.Equal(t, 10, s.dot(1))
	assert.Equal(t, 0, s.dot(-3))
	assert.Equal(t, 10, s.dot(7))
	assert.Equal(t, 0, scale{lo: 1, hi: 1, n: 5}.dot(1))
}

func ballBuilder(duration float64) Builder {
	return func() (*experiment.Experiment, error) {
		exp := experiment.New(experiment.Config{
			Model:    "bouncing_ball",
			Theta:    0.5,
			Solver:   "pgs",
			Dt:       0.01,
			Duration: duration,
			Options:  timestepping.DefaultOptions(),
		})
		if err := exp.Setup(experiment.NewRegistry(), logging.NewNop()); err != nil {
			return nil, err
		}
		return exp, nil
	}
}

func TestModel_TicksAdvanceSimulation(t *testing.T) {
	m, err := NewModel(ballBuilder(0.1), 4)
	require.NoError(t, err)

	next, cmd := m.Update(TickMsg{})
	assert.NotNil(t, cmd)
	m = next.(Model)
	assert.Equal(t, 4, m.ts.Clock().Index())
	assert.Len(t, m.hist.energy, 4)

	for i := 0; i < 5; i++ {
		next, _ = m.Update(TickMsg{})
		m = next.(Model)
	}
	assert.True(t, m.done)
	assert.Equal(t, 10, m.ts.Clock().Index())
	assert.Contains(t, m.View(), "FINISHED")
}

func TestModel_PauseStepReset(t *testing.T) {
	m, err := NewModel(ballBuilder(1), 1)
	require.NoError(t, err)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{' '}})
	m = next.(Model)
	assert.False(t, m.running)
	assert.Contains(t, m.View(), "PAUSED")

	next, _ = m.Update(TickMsg{})
	m = next.(Model)
	assert.Equal(t, 0, m.ts.Clock().Index())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	m = next.(Model)
	assert.Equal(t, 1, m.ts.Clock().Index())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = next.(Model)
	assert.Equal(t, 0, m.ts.Clock().Index())
	assert.Empty(t, m.hist.energy)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestNewModel_BuildError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewModel(func() (*experiment.Experiment, error) { return nil, boom }, 1)
	assert.ErrorIs(t, err, boom)
}
