// Package flow: canned user-facing message text and builders.
//
// Every string a user can see lives here. The wording is part of the bot's
// contract; keep it warm and non-technical.
package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/kindatcart/cartcheck/internal/catalog"
	"github.com/kindatcart/cartcheck/internal/models"
)

// DefaultSenderName is used when the provider supplies no display name.
const DefaultSenderName = "Friend"

const (
	goalsReprompt = `Please reply with numbers (e.g., '1, 2') to select your health goals.`

	photoPrompt = "📸 Send me a photo of your grocery cart and I'll check it for you!\n\nOr type 'help' for more options."

	nonTextNudge = "Please send me a text message or a photo of your grocery cart! 📸"

	// badImageMessage is sent when an image arrives without a usable media reference.
	badImageMessage = "I couldn't process that image. Please try again!"

	helpMessage = `*Cart Check Help*

📸 *Check your cart:* Send a photo of your grocery cart

🔄 *Update profile:* Type "reset" to start over

📊 *Your stats:* Type "stats" to see your progress

💬 *Commands:*
• "reset" - Start fresh
• "stats" - Your stats
• "profile" - View your profile
• "swap <item>" - Look up a healthier swap
• "help" - This message`

	noProfileMessage = "You haven't set up your profile yet. Send 'hi' to get started!"

	incompleteProfileMessage = "You haven't completed your profile yet. Send 'hi' to get started!"

	analyzingAck = "🔍 Analyzing your cart... This takes about 10 seconds."

	incompletePhotoPrompt = "Let's set up your profile first! What are your health goals?\n\n" +
		"Reply with numbers:\n" +
		"1. Lower cholesterol\n2. Lose weight\n3. Manage diabetes\n4. Lower blood pressure\n5. Improve heart health\n6. General wellness"

	genericRetryMessage = "😅 Something went wrong analyzing your cart. Please try again!"

	swapUsageMessage = `Tell me which item to look up, e.g. "swap instant noodles".`
)

// keycap renders a single-digit code as its keycap emoji, matching the menus
// users already know. Multi-digit codes fall back to "N."
func keycap(code string) string {
	if len(code) == 1 && code[0] >= '0' && code[0] <= '9' {
		return string(code[0]) + "️⃣"
	}
	return code + "."
}

// menuLines renders catalog entries as "1️⃣ Label" lines in menu order.
func menuLines(entries map[string]string, order []string) string {
	var lines []string
	for _, code := range order {
		lines = append(lines, fmt.Sprintf("%s %s", keycap(code), entries[code]))
	}
	return strings.Join(lines, "\n")
}

// welcomeMessage greets a new user and presents the goal menu.
func welcomeMessage(name string) string {
	return fmt.Sprintf(`👋 *Welcome to Cart Check, %s!*

I help you make healthier grocery choices by checking your cart before checkout.

Let's set up your profile (takes 30 seconds):

*What are your health goals?*
Reply with the numbers (e.g., "1, 2"):

%s`, name, menuLines(catalog.Goals, catalog.GoalOrder))
}

// restrictionsMenuMessage confirms the chosen goals and presents the
// restriction menu.
func restrictionsMenuMessage(selectedGoals []string) string {
	return fmt.Sprintf(`Great! You selected: %s

*Now, any foods you need to avoid?*
Reply with numbers (e.g., "1, 2, 3"):

%s

Or reply "none" if no restrictions.`, strings.Join(selectedGoals, ", "), menuLines(catalog.Restrictions, catalog.RestrictionOrder))
}

// readyMessage summarizes the completed profile and explains usage.
func readyMessage(profile *models.UserProfile) string {
	return fmt.Sprintf(`✅ *You're all set!*

*Your Profile:*
📎 Goals: %s
🚫 Avoid: %s

━━━━━━━━━━━━━━━━━

*How to use Cart Check:*
📸 Take a photo of your grocery cart
📤 Send it to me
📋 Get instant health feedback + swap suggestions

Next time you're at the store, just send me a cart photo!

🛒 Happy healthy shopping! 💚`, strings.Join(profile.HealthGoals, ", "), restrictionsText(profile.Restrictions))
}

// statsMessage reports the user's usage counters.
func statsMessage(profile *models.UserProfile) string {
	memberSince := "Today"
	if !profile.CreatedAt.IsZero() {
		memberSince = profile.CreatedAt.Format(time.DateOnly)
	}
	return fmt.Sprintf(`📊 *Your Cart Check Stats*

🛒 Carts checked: %d
🔄 Items reconsidered: %d
📅 Member since: %s

Keep making healthy choices! 💚`, profile.CartChecks, profile.ItemsReconsidered, memberSince)
}

// profileMessage shows the user's current goals and restrictions.
func profileMessage(profile *models.UserProfile) string {
	return fmt.Sprintf(`👤 *Your Profile*

📎 Goals: %s
🚫 Avoid: %s

Type "reset" to update your profile.`, strings.Join(profile.HealthGoals, ", "), restrictionsText(profile.Restrictions))
}

// swapMessage renders a curated swap suggestion for a looked-up item.
func swapMessage(item string, rule *catalog.SwapRule) string {
	return fmt.Sprintf(`🔄 *Swap idea for %s:*

→ Try: %s
_%s_`, item, rule.Alternative, rule.Reason)
}

// swapMissMessage is sent when no curated rule matches the looked-up item.
func swapMissMessage(item string) string {
	return fmt.Sprintf("🤷 I don't have a curated swap for %q yet. Send a cart photo and I'll suggest alternatives for anything worth reconsidering!", item)
}

func restrictionsText(restrictions []string) string {
	if len(restrictions) == 0 {
		return "None"
	}
	return strings.Join(restrictions, ", ")
}
