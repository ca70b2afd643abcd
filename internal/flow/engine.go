// Package flow implements the CartCheck conversation engine.
//
// The engine routes each inbound message through per-user conversation state:
// onboarding (goal and restriction selection), cart photo analysis, and the
// global text commands. It owns all writes to the profile store and state map.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kindatcart/cartcheck/internal/catalog"
	"github.com/kindatcart/cartcheck/internal/models"
	"github.com/kindatcart/cartcheck/internal/store"
)

// MessageSender abstracts the messaging collaborator the engine replies through.
// The messaging.Service implementations satisfy it.
type MessageSender interface {
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	SendMessage(ctx context.Context, to string, body string) error
	DownloadMedia(ctx context.Context, mediaID string) (data []byte, mediaType string, err error)
}

// resetCommands trigger a full profile reset from any state.
var resetCommands = map[string]bool{
	"reset":       true,
	"restart":     true,
	"start over":  true,
	"new profile": true,
}

// Engine is the conversation state machine. It reads and writes profiles and
// state through the store, classifies photos through the classifier, and
// replies through the message sender.
type Engine struct {
	store      store.Store
	msg        MessageSender
	classifier Classifier
	now        func() time.Time
}

// NewEngine creates a conversation engine with the given collaborators.
func NewEngine(st store.Store, msg MessageSender, classifier Classifier) *Engine {
	return &Engine{store: st, msg: msg, classifier: classifier, now: time.Now}
}

// HandleIncoming processes one inbound message to completion. Errors are
// returned for logging only; user-visible failures have already been sent as
// warm, non-technical messages by the time this returns.
func (e *Engine) HandleIncoming(ctx context.Context, in models.IncomingMessage) error {
	from, err := e.msg.ValidateAndCanonicalizeRecipient(in.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	name := in.Name
	if name == "" {
		name = DefaultSenderName
	}

	slog.Debug("Engine handling message", "from", from, "kind", in.Kind)
	switch in.Kind {
	case models.MessageKindText:
		return e.handleText(ctx, from, name, in.Text)
	case models.MessageKindImage:
		return e.handleCartPhoto(ctx, from, in)
	default:
		return e.msg.SendMessage(ctx, from, nonTextNudge)
	}
}

// handleText runs the global command intercepts and then dispatches on the
// user's conversation state.
func (e *Engine) handleText(ctx context.Context, from, name, text string) error {
	command := strings.ToLower(strings.TrimSpace(text))

	// Global intercepts, in priority order. None of them advance the state
	// machine except reset, which restarts it from scratch.
	switch {
	case resetCommands[command]:
		return e.handleReset(ctx, from, name)
	case command == "help" || command == "?":
		return e.msg.SendMessage(ctx, from, helpMessage)
	case command == "stats":
		return e.handleStats(ctx, from)
	case command == "profile":
		return e.handleProfileView(ctx, from)
	case command == "swap" || strings.HasPrefix(command, "swap "):
		return e.handleSwapLookup(ctx, from, strings.TrimSpace(strings.TrimPrefix(command, "swap")))
	}

	state, err := e.store.GetState(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to load state for %s: %w", from, err)
	}
	profile, err := e.store.GetProfile(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to load profile for %s: %w", from, err)
	}

	if profile == nil || state == models.StateNew {
		return e.handleNewUser(ctx, from, name)
	}

	switch state {
	case models.StateAwaitingGoals:
		return e.handleGoalsResponse(ctx, from, profile, text)
	case models.StateAwaitingRestrictions:
		return e.handleRestrictionsResponse(ctx, from, profile, text)
	case models.StateReady:
		return e.msg.SendMessage(ctx, from, photoPrompt)
	default:
		// Unknown recorded state: restart onboarding rather than wedge the user.
		slog.Warn("Engine found unknown conversation state, restarting onboarding", "from", from, "state", state)
		return e.handleNewUser(ctx, from, name)
	}
}

// handleNewUser creates a blank profile and sends the welcome + goal menu.
func (e *Engine) handleNewUser(ctx context.Context, from, name string) error {
	profile := &models.UserProfile{
		ID:        from,
		Name:      name,
		CreatedAt: e.now(),
	}
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to create profile for %s: %w", from, err)
	}
	if err := e.store.SetState(ctx, from, models.StateAwaitingGoals); err != nil {
		return fmt.Errorf("failed to set state for %s: %w", from, err)
	}
	slog.Info("Engine created new profile", "from", from)
	return e.msg.SendMessage(ctx, from, welcomeMessage(name))
}

// handleReset deletes the profile and state, then re-runs the new-user path.
func (e *Engine) handleReset(ctx context.Context, from, name string) error {
	if err := e.store.DeleteProfile(ctx, from); err != nil {
		return fmt.Errorf("failed to reset profile for %s: %w", from, err)
	}
	slog.Info("Engine reset profile", "from", from)
	return e.handleNewUser(ctx, from, name)
}

func (e *Engine) handleStats(ctx context.Context, from string) error {
	profile, err := e.store.GetProfile(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to load profile for %s: %w", from, err)
	}
	if profile == nil {
		return e.msg.SendMessage(ctx, from, noProfileMessage)
	}
	return e.msg.SendMessage(ctx, from, statsMessage(profile))
}

func (e *Engine) handleProfileView(ctx context.Context, from string) error {
	profile, err := e.store.GetProfile(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to load profile for %s: %w", from, err)
	}
	if !profile.Complete() {
		return e.msg.SendMessage(ctx, from, incompleteProfileMessage)
	}
	return e.msg.SendMessage(ctx, from, profileMessage(profile))
}

// handleSwapLookup answers the "swap <item>" command from the curated
// alternatives table.
func (e *Engine) handleSwapLookup(ctx context.Context, from, item string) error {
	if item == "" {
		return e.msg.SendMessage(ctx, from, swapUsageMessage)
	}
	rule, ok := catalog.FindAlternative(item)
	if !ok {
		return e.msg.SendMessage(ctx, from, swapMissMessage(item))
	}
	return e.msg.SendMessage(ctx, from, swapMessage(item, rule))
}

// handleGoalsResponse parses the goal selection. An empty selection is an
// input-recognition failure: re-prompt, no state change.
func (e *Engine) handleGoalsResponse(ctx context.Context, from string, profile *models.UserProfile, text string) error {
	selected := catalog.ParseSelection(text, catalog.Goals)
	if len(selected) == 0 {
		return e.msg.SendMessage(ctx, from, goalsReprompt)
	}

	profile.HealthGoals = selected
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save goals for %s: %w", from, err)
	}
	if err := e.store.SetState(ctx, from, models.StateAwaitingRestrictions); err != nil {
		return fmt.Errorf("failed to set state for %s: %w", from, err)
	}
	slog.Info("Engine recorded health goals", "from", from, "goals", len(selected))
	return e.msg.SendMessage(ctx, from, restrictionsMenuMessage(selected))
}

// handleRestrictionsResponse records the restriction selection and completes
// onboarding. "none" and a selection with zero recognized codes both yield an
// empty restriction set; either way the restrictions step counts as visited.
func (e *Engine) handleRestrictionsResponse(ctx context.Context, from string, profile *models.UserProfile, text string) error {
	var selected []string
	if strings.ToLower(strings.TrimSpace(text)) != "none" {
		selected = catalog.ParseSelection(text, catalog.Restrictions)
	}
	if selected == nil {
		selected = []string{}
	}

	profile.Restrictions = selected
	profile.RestrictionsSet = true
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save restrictions for %s: %w", from, err)
	}
	if err := e.store.SetState(ctx, from, models.StateReady); err != nil {
		return fmt.Errorf("failed to set state for %s: %w", from, err)
	}
	slog.Info("Engine completed onboarding", "from", from, "restrictions", len(selected))
	return e.msg.SendMessage(ctx, from, readyMessage(profile))
}

// handleCartPhoto runs the analysis pipeline for one cart photo: recover
// incomplete profiles to goal selection, acknowledge, download, classify,
// reply, and bump counters on success only.
func (e *Engine) handleCartPhoto(ctx context.Context, from string, in models.IncomingMessage) error {
	if len(in.MediaData) == 0 && in.MediaID == "" {
		return e.msg.SendMessage(ctx, from, badImageMessage)
	}

	profile, err := e.store.GetProfile(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to load profile for %s: %w", from, err)
	}
	state, err := e.store.GetState(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to load state for %s: %w", from, err)
	}

	if profile == nil || !profile.Complete() || state != models.StateReady {
		// Recovery path: the store may have been reset externally while the
		// user still believes they are onboarded.
		if profile == nil {
			profile = &models.UserProfile{ID: from, Name: in.Name, CreatedAt: e.now()}
			if err := e.store.SaveProfile(ctx, profile); err != nil {
				return fmt.Errorf("failed to create profile for %s: %w", from, err)
			}
		}
		if err := e.store.SetState(ctx, from, models.StateAwaitingGoals); err != nil {
			return fmt.Errorf("failed to set state for %s: %w", from, err)
		}
		slog.Info("Engine redirected photo sender to goal selection", "from", from)
		return e.msg.SendMessage(ctx, from, incompletePhotoPrompt)
	}

	// Acknowledge before the slow classification call.
	if err := e.msg.SendMessage(ctx, from, analyzingAck); err != nil {
		slog.Error("Engine failed to send analysis acknowledgment", "error", err, "from", from)
	}

	image := in.MediaData
	mediaType := in.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	if len(image) == 0 {
		var err error
		image, mediaType, err = e.msg.DownloadMedia(ctx, in.MediaID)
		if err != nil {
			slog.Error("Engine failed to download media", "error", err, "from", from, "media_id", in.MediaID)
			return e.msg.SendMessage(ctx, from, genericRetryMessage)
		}
	}

	analysis, err := e.classifier.Classify(ctx, image, mediaType, profile)
	if err != nil {
		// Transport failures and unparsable output are indistinguishable to
		// the user: both get the fixed apology. Diagnostics stay in the logs.
		if uerr, ok := err.(*UnparsableAnalysisError); ok {
			slog.Error("Engine received unparsable analysis", "from", from, "reason", uerr.Reason, "raw_length", len(uerr.Raw))
		} else {
			slog.Error("Engine cart analysis failed", "error", err, "from", from)
		}
		return e.msg.SendMessage(ctx, from, AnalysisFailureMessage)
	}

	if err := e.msg.SendMessage(ctx, from, FormatAnalysis(analysis)); err != nil {
		return fmt.Errorf("failed to send analysis report to %s: %w", from, err)
	}

	// Counters are persisted on the success path only.
	profile.CartChecks++
	profile.ItemsReconsidered += analysis.ReconsiderCount()
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		slog.Error("Engine failed to persist counters", "error", err, "from", from)
	}
	slog.Info("Engine completed cart analysis", "from", from, "items", len(analysis.Items), "score", analysis.HealthScore)
	return nil
}
