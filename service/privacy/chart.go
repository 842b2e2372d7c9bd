package privacy

import "fmt"

// Tier classifies a score for colouring.
type Tier string

const (
	TierGood    Tier = "good"
	TierWarning Tier = "warning"
	TierPoor    Tier = "poor"
)

// TierColors holds the line and fill colours of a tier.
type TierColors struct {
	Border     string `json:"border"`
	Background string `json:"background"`
}

var tierColors = map[Tier]TierColors{
	TierGood:    {Border: "#10b981", Background: "rgba(16, 185, 129, 0.1)"},
	TierWarning: {Border: "#f59e0b", Background: "rgba(245, 158, 11, 0.1)"},
	TierPoor:    {Border: "#ef4444", Background: "rgba(239, 68, 68, 0.1)"},
}

// ScoreTier maps a score to its colour tier.
func ScoreTier(score int) Tier {
	switch {
	case score >= 80:
		return TierGood
	case score >= 50:
		return TierWarning
	default:
		return TierPoor
	}
}

// Colors returns the fixed colours of the tier.
func (t Tier) Colors() TierColors {
	return tierColors[t]
}

// ChartSeries is a chart-ready projection of a ScoreState.
type ChartSeries struct {
	Labels          []string `json:"labels"`
	Label           string   `json:"label"`
	Data            []int    `json:"data"`
	Tier            Tier     `json:"tier"`
	BorderColor     string   `json:"border_color"`
	BackgroundColor string   `json:"background_color"`
	Tension         float64  `json:"tension"`
}

// Chart projects state into one point per transaction. Every point carries
// the aggregate score, so the series is a flat line.
func Chart(state ScoreState) ChartSeries {
	n := len(state.Transactions)
	tier := ScoreTier(state.Score)
	colors := tier.Colors()

	series := ChartSeries{
		Labels:          make([]string, n),
		Label:           "Privacy Score %",
		Data:            make([]int, n),
		Tier:            tier,
		BorderColor:     colors.Border,
		BackgroundColor: colors.Background,
		Tension:         0.3,
	}
	for i := range n {
		series.Labels[i] = fmt.Sprintf("Tx %d", i+1)
		series.Data[i] = state.Score
	}
	return series
}

// Verdict is the one-line message shown under the score.
func Verdict(score int) string {
	if score >= 80 {
		return "Excellent privacy!"
	}
	return "Use shielded addresses (zs1...) for max privacy"
}

// PanelTier is the tier of the score panel, which only distinguishes
// good from poor.
func PanelTier(score int) Tier {
	if score >= 80 {
		return TierGood
	}
	return TierPoor
}
