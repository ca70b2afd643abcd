// Package flow: cart analysis report formatting.
package flow

import (
	"fmt"
	"strings"

	"github.com/kindatcart/cartcheck/internal/models"
)

// AnalysisFailureMessage is the fixed apology sent when an analysis could not
// be produced. No partial content is ever shown alongside it.
const AnalysisFailureMessage = "🤔 I had trouble analyzing that image. Could you try taking another photo with better lighting? Make sure the items in your cart are clearly visible!"

// DefaultEncouragement is used when the model omits an encouragement line.
const DefaultEncouragement = "Keep making healthy choices!"

// FormatAnalysis renders a cart analysis as a single text block: header,
// star-based score bar, the three category groups (only when non-empty,
// preserving the model's item order), the encouragement line, and a standing
// invitation to send another photo.
func FormatAnalysis(analysis *models.CartAnalysis) string {
	score := analysis.HealthScore
	if score == 0 {
		score = models.DefaultHealthScore
	}
	encouragement := analysis.Encouragement
	if encouragement == "" {
		encouragement = DefaultEncouragement
	}

	var good, okay, reconsider []models.CartItem
	for _, item := range analysis.Items {
		switch item.Category {
		case models.CategoryGood:
			good = append(good, item)
		case models.CategoryOkay:
			okay = append(okay, item)
		case models.CategoryReconsider:
			reconsider = append(reconsider, item)
		}
	}

	var lines []string
	lines = append(lines, "🛒 *Your Cart Health Report*")
	lines = append(lines, "━━━━━━━━━━━━━━━━━")
	lines = append(lines, fmt.Sprintf("Health Score: %s%s (%d/10)",
		strings.Repeat("⭐", score), strings.Repeat("☆", models.MaxHealthScore-score), score))
	lines = append(lines, "")

	if len(good) > 0 {
		lines = append(lines, "✅ *GREAT CHOICES:*")
		for _, item := range good {
			lines = append(lines, fmt.Sprintf("  • %s", item.Name))
		}
		lines = append(lines, "")
	}

	if len(okay) > 0 {
		lines = append(lines, "👍 *OKAY IN MODERATION:*")
		for _, item := range okay {
			lines = append(lines, fmt.Sprintf("  • %s", item.Name))
		}
		lines = append(lines, "")
	}

	if len(reconsider) > 0 {
		lines = append(lines, "🔄 *CONSIDER SWAPPING:*")
		for _, item := range reconsider {
			lines = append(lines, fmt.Sprintf("  • *%s*", item.Name))
			if item.Reason != "" {
				lines = append(lines, fmt.Sprintf("    _%s_", item.Reason))
			}
			if item.Alternative != "" {
				lines = append(lines, fmt.Sprintf("    → Try: %s", item.Alternative))
			}
		}
		lines = append(lines, "")
	}

	lines = append(lines, fmt.Sprintf("💚 %s", encouragement))
	lines = append(lines, "")
	lines = append(lines, "_Send another photo anytime!_")

	return strings.Join(lines, "\n")
}
