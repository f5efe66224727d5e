package style

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Bold and Dim are the two base text styles Table uses for headers and
// separators.
var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#888888", Dark: "#666666"})
)

// State-keyed colors for the agent-session status badges `overstory
// status` renders: one foreground per lifecycle state, adapting to the
// terminal's light/dark background.
var stateColors = map[string]lipgloss.AdaptiveColor{
	"booting":   {Light: "#b3841e", Dark: "#d9a441"},
	"working":   {Light: "#86b300", Dark: "#c2d94c"},
	"stalled":   {Light: "#d9730d", Dark: "#e8a33d"},
	"zombie":    {Light: "#f07171", Dark: "#f07178"},
	"completed": {Light: "#888888", Dark: "#666666"},
}

// StateBadge renders a session state in its assigned color, falling back
// to an unstyled render for any state it doesn't recognize.
func StateBadge(state string) string {
	c, ok := stateColors[state]
	if !ok {
		return state
	}
	return lipgloss.NewStyle().Foreground(c).Render(state)
}

// Cost-usage spend tiers `overstory status`'s text rendering colors an
// agent's cumulative estimatedCostUsd by, cheapest to priciest.
var (
	costColorLow    = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	costColorMedium = lipgloss.AdaptiveColor{Light: "#d9730d", Dark: "#e8a33d"}
	costColorHigh   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
)

// CostBadge renders a dollar-formatted cumulative cost, colored by spend
// tier: under $0.50 is low, under $2 is medium, anything higher is high.
func CostBadge(estimatedCostUsd float64) string {
	c := costColorLow
	switch {
	case estimatedCostUsd >= 2.0:
		c = costColorHigh
	case estimatedCostUsd >= 0.5:
		c = costColorMedium
	}
	return lipgloss.NewStyle().Foreground(c).Render(fmt.Sprintf("$%.2f", estimatedCostUsd))
}
