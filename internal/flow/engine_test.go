package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kindatcart/cartcheck/internal/models"
	"github.com/kindatcart/cartcheck/internal/store"
	"github.com/kindatcart/cartcheck/internal/testutil"
)

// stubClassifier returns a canned analysis or error.
type stubClassifier struct {
	analysis *models.CartAnalysis
	err      error
	calls    int
}

func (s *stubClassifier) Classify(ctx context.Context, image []byte, mediaType string, profile *models.UserProfile) (*models.CartAnalysis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

const testUser = "15551234567"

func newTestEngine(classifier Classifier) (*Engine, *store.InMemoryStore, *testutil.MockMessenger) {
	st := store.NewInMemoryStore()
	msg := testutil.NewMockMessenger()
	if classifier == nil {
		classifier = &stubClassifier{analysis: &models.CartAnalysis{HealthScore: 7}}
	}
	e := NewEngine(st, msg, classifier)
	e.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e, st, msg
}

func text(body string) models.IncomingMessage {
	return models.IncomingMessage{From: testUser, Name: "Asha", Kind: models.MessageKindText, Text: body}
}

func photo(mediaID string) models.IncomingMessage {
	return models.IncomingMessage{From: testUser, Name: "Asha", Kind: models.MessageKindImage, MediaID: mediaID}
}

func mustHandle(t *testing.T, e *Engine, in models.IncomingMessage) {
	t.Helper()
	if err := e.HandleIncoming(context.Background(), in); err != nil {
		t.Fatalf("HandleIncoming(%+v): %v", in, err)
	}
}

// onboard walks a user through the full onboarding dialogue.
func onboard(t *testing.T, e *Engine, goals, restrictions string) {
	t.Helper()
	mustHandle(t, e, text("hi"))
	mustHandle(t, e, text(goals))
	mustHandle(t, e, text(restrictions))
}

func TestNewUserAnyMessageStartsOnboarding(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	mustHandle(t, e, text("hello there"))

	profile, err := st.GetProfile(context.Background(), testUser)
	if err != nil || profile == nil {
		t.Fatalf("expected profile to be created, got %v, %v", profile, err)
	}
	if len(profile.HealthGoals) != 0 || profile.RestrictionsSet {
		t.Errorf("new profile should be blank: %+v", profile)
	}
	if profile.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	state, _ := st.GetState(context.Background(), testUser)
	if state != models.StateAwaitingGoals {
		t.Errorf("state = %q, want awaiting_goals", state)
	}
	if !strings.Contains(msg.LastSent(t).Body, "Welcome to Cart Check, Asha") {
		t.Errorf("welcome not sent: %q", msg.LastSent(t).Body)
	}
}

func TestGoalSelectionDedupesAndKeepsOrder(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	mustHandle(t, e, text("hi"))
	mustHandle(t, e, text("2, 1, 2"))

	profile, _ := st.GetProfile(context.Background(), testUser)
	if len(profile.HealthGoals) != 2 || profile.HealthGoals[0] != "Lose weight" || profile.HealthGoals[1] != "Lower cholesterol" {
		t.Errorf("goals = %v, want [Lose weight, Lower cholesterol]", profile.HealthGoals)
	}
	state, _ := st.GetState(context.Background(), testUser)
	if state != models.StateAwaitingRestrictions {
		t.Errorf("state = %q, want awaiting_restrictions", state)
	}
	if !strings.Contains(msg.LastSent(t).Body, "any foods you need to avoid") {
		t.Errorf("restriction menu not sent: %q", msg.LastSent(t).Body)
	}
}

func TestGoalSelectionRepromptsOnGarbage(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	mustHandle(t, e, text("hi"))
	mustHandle(t, e, text("lose weight please"))

	state, _ := st.GetState(context.Background(), testUser)
	if state != models.StateAwaitingGoals {
		t.Errorf("state advanced on unrecognized input: %q", state)
	}
	if msg.LastSent(t).Body != goalsReprompt {
		t.Errorf("expected re-prompt, got %q", msg.LastSent(t).Body)
	}
	profile, _ := st.GetProfile(context.Background(), testUser)
	if len(profile.HealthGoals) != 0 {
		t.Errorf("goals recorded from garbage: %v", profile.HealthGoals)
	}
}

func TestRestrictionsNoneAndEmptyBothComplete(t *testing.T) {
	for _, input := range []string{"none", "NONE  ", "no restrictions here"} {
		t.Run(input, func(t *testing.T) {
			e, st, _ := newTestEngine(nil)
			onboard(t, e, "2", input)

			profile, _ := st.GetProfile(context.Background(), testUser)
			if len(profile.Restrictions) != 0 {
				t.Errorf("restrictions = %v, want empty", profile.Restrictions)
			}
			if !profile.Complete() {
				t.Error("profile should report complete after restrictions step")
			}
			state, _ := st.GetState(context.Background(), testUser)
			if state != models.StateReady {
				t.Errorf("state = %q, want ready", state)
			}
		})
	}
}

func TestRestrictionSelectionRecorded(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	onboard(t, e, "1, 5", "4, 7")

	profile, _ := st.GetProfile(context.Background(), testUser)
	want := []string{"No nuts", "No meat"}
	if len(profile.Restrictions) != 2 || profile.Restrictions[0] != want[0] || profile.Restrictions[1] != want[1] {
		t.Errorf("restrictions = %v, want %v", profile.Restrictions, want)
	}
	if !strings.Contains(msg.LastSent(t).Body, "You're all set") {
		t.Errorf("ready message not sent: %q", msg.LastSent(t).Body)
	}
}

func TestReadyTextPromptsForPhoto(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	onboard(t, e, "2", "none")
	mustHandle(t, e, text("what do I do now"))

	if msg.LastSent(t).Body != photoPrompt {
		t.Errorf("expected photo prompt, got %q", msg.LastSent(t).Body)
	}
}

func TestResetFromEveryStateRestartsOnboarding(t *testing.T) {
	setups := map[string]func(t *testing.T, e *Engine){
		"awaiting_goals":        func(t *testing.T, e *Engine) { mustHandle(t, e, text("hi")) },
		"awaiting_restrictions": func(t *testing.T, e *Engine) { mustHandle(t, e, text("hi")); mustHandle(t, e, text("2")) },
		"ready":                 func(t *testing.T, e *Engine) { onboard(t, e, "2", "none") },
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			e, st, msg := newTestEngine(nil)
			setup(t, e)
			mustHandle(t, e, text("Start Over"))

			state, _ := st.GetState(context.Background(), testUser)
			if state != models.StateAwaitingGoals {
				t.Errorf("state after reset = %q, want awaiting_goals", state)
			}
			profile, _ := st.GetProfile(context.Background(), testUser)
			if profile == nil || len(profile.HealthGoals) != 0 || profile.RestrictionsSet || profile.CartChecks != 0 {
				t.Errorf("profile not blank after reset: %+v", profile)
			}
			if !strings.Contains(msg.LastSent(t).Body, "Welcome to Cart Check") {
				t.Errorf("welcome not re-sent after reset: %q", msg.LastSent(t).Body)
			}
		})
	}
}

func TestPhotoWhileIncompleteForcesGoalSelection(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	mustHandle(t, e, text("hi"))
	mustHandle(t, e, photo("media-1"))

	state, _ := st.GetState(context.Background(), testUser)
	if state != models.StateAwaitingGoals {
		t.Errorf("state = %q, want awaiting_goals", state)
	}
	if msg.LastSent(t).Body != incompletePhotoPrompt {
		t.Errorf("expected goal-selection prompt, got %q", msg.LastSent(t).Body)
	}
}

func TestPhotoFromUnknownUserForcesGoalSelection(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	mustHandle(t, e, photo("media-1"))

	profile, _ := st.GetProfile(context.Background(), testUser)
	if profile == nil {
		t.Fatal("expected implicit profile creation")
	}
	state, _ := st.GetState(context.Background(), testUser)
	if state != models.StateAwaitingGoals {
		t.Errorf("state = %q, want awaiting_goals", state)
	}
	if msg.LastSent(t).Body != incompletePhotoPrompt {
		t.Errorf("expected goal-selection prompt, got %q", msg.LastSent(t).Body)
	}
}

func TestPhotoAnalysisSuccessBumpsCounters(t *testing.T) {
	classifier := &stubClassifier{analysis: &models.CartAnalysis{
		Items: []models.CartItem{
			{Name: "spinach", Category: models.CategoryGood},
			{Name: "chips", Category: models.CategoryReconsider, Reason: "fried", Alternative: "popcorn"},
			{Name: "soda", Category: models.CategoryReconsider, Reason: "sugar", Alternative: "sparkling water"},
		},
		HealthScore:   6,
		Encouragement: "Nice work!",
	}}
	e, st, msg := newTestEngine(classifier)
	onboard(t, e, "2", "none")
	msg.Media["media-9"] = []byte("jpeg-bytes")
	mustHandle(t, e, photo("media-9"))

	if classifier.calls != 1 {
		t.Fatalf("classifier called %d times, want 1", classifier.calls)
	}
	// Acknowledgment precedes the report.
	bodies := msg.Sent
	ack, report := bodies[len(bodies)-2].Body, bodies[len(bodies)-1].Body
	if ack != analyzingAck {
		t.Errorf("expected acknowledgment before report, got %q", ack)
	}
	if !strings.Contains(report, "Your Cart Health Report") || !strings.Contains(report, "Nice work!") {
		t.Errorf("unexpected report: %q", report)
	}

	profile, _ := st.GetProfile(context.Background(), testUser)
	if profile.CartChecks != 1 || profile.ItemsReconsidered != 2 {
		t.Errorf("counters = %d/%d, want 1/2", profile.CartChecks, profile.ItemsReconsidered)
	}
}

func TestPhotoAnalysisFailureSendsApologyAndSkipsCounters(t *testing.T) {
	classifier := &stubClassifier{err: &UnparsableAnalysisError{Raw: "gibberish", Reason: "no JSON object found"}}
	e, st, msg := newTestEngine(classifier)
	onboard(t, e, "2", "none")
	msg.Media["media-9"] = []byte("jpeg-bytes")
	mustHandle(t, e, photo("media-9"))

	if msg.LastSent(t).Body != AnalysisFailureMessage {
		t.Errorf("expected apology, got %q", msg.LastSent(t).Body)
	}
	profile, _ := st.GetProfile(context.Background(), testUser)
	if profile.CartChecks != 0 || profile.ItemsReconsidered != 0 {
		t.Errorf("counters bumped on failure: %+v", profile)
	}
}

func TestPhotoDownloadFailureSendsRetryMessage(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	onboard(t, e, "2", "none")
	msg.MediaErr = errors.New("media gone")
	mustHandle(t, e, photo("media-9"))

	if msg.LastSent(t).Body != genericRetryMessage {
		t.Errorf("expected retry message, got %q", msg.LastSent(t).Body)
	}
}

func TestPhotoWithInlineMediaSkipsDownload(t *testing.T) {
	classifier := &stubClassifier{analysis: &models.CartAnalysis{HealthScore: 8}}
	e, _, msg := newTestEngine(classifier)
	onboard(t, e, "2", "none")
	msg.MediaErr = errors.New("download should not be attempted")

	in := photo("")
	in.MediaData = []byte("inline-jpeg")
	mustHandle(t, e, in)

	if classifier.calls != 1 {
		t.Errorf("classifier not reached with inline media")
	}
}

func TestPhotoWithoutMediaReferenceRejected(t *testing.T) {
	classifier := &stubClassifier{analysis: &models.CartAnalysis{HealthScore: 8}}
	e, _, msg := newTestEngine(classifier)
	onboard(t, e, "2", "none")
	mustHandle(t, e, photo(""))

	if msg.LastSent(t).Body != badImageMessage {
		t.Errorf("expected bad image message, got %q", msg.LastSent(t).Body)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier should not run without media")
	}
}

func TestHelpCommand(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	onboard(t, e, "2", "none")
	mustHandle(t, e, text(" HELP "))

	if !strings.Contains(msg.LastSent(t).Body, "Cart Check Help") {
		t.Errorf("help not sent: %q", msg.LastSent(t).Body)
	}
	state, _ := st.GetState(context.Background(), testUser)
	if state != models.StateReady {
		t.Errorf("help advanced state machine to %q", state)
	}
}

func TestHelpInterceptDuringOnboarding(t *testing.T) {
	e, st, msg := newTestEngine(nil)
	mustHandle(t, e, text("hi"))
	mustHandle(t, e, text("?"))

	if !strings.Contains(msg.LastSent(t).Body, "Cart Check Help") {
		t.Errorf("help not sent: %q", msg.LastSent(t).Body)
	}
	state, _ := st.GetState(context.Background(), testUser)
	if state != models.StateAwaitingGoals {
		t.Errorf("intercept advanced state machine to %q", state)
	}
}

func TestStatsCommand(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	onboard(t, e, "2", "none")
	mustHandle(t, e, text("stats"))

	body := msg.LastSent(t).Body
	if !strings.Contains(body, "Carts checked: 0") || !strings.Contains(body, "Member since: 2024-03-01") {
		t.Errorf("unexpected stats: %q", body)
	}
}

func TestStatsWithoutProfile(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	mustHandle(t, e, text("stats"))
	if msg.LastSent(t).Body != noProfileMessage {
		t.Errorf("expected no-profile message, got %q", msg.LastSent(t).Body)
	}
}

func TestProfileCommand(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	onboard(t, e, "1, 2", "3")
	mustHandle(t, e, text("profile"))

	body := msg.LastSent(t).Body
	if !strings.Contains(body, "Lower cholesterol, Lose weight") || !strings.Contains(body, "No sugar") {
		t.Errorf("unexpected profile view: %q", body)
	}
}

func TestProfileCommandIncomplete(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	mustHandle(t, e, text("hi"))
	mustHandle(t, e, text("profile"))
	if msg.LastSent(t).Body != incompleteProfileMessage {
		t.Errorf("expected incomplete-profile message, got %q", msg.LastSent(t).Body)
	}
}

func TestSwapLookupCommand(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	onboard(t, e, "2", "none")

	mustHandle(t, e, text("swap instant noodles"))
	if !strings.Contains(msg.LastSent(t).Body, "Rice noodles") {
		t.Errorf("expected curated swap, got %q", msg.LastSent(t).Body)
	}

	mustHandle(t, e, text("swap quinoa"))
	if !strings.Contains(msg.LastSent(t).Body, "don't have a curated swap") {
		t.Errorf("expected polite miss, got %q", msg.LastSent(t).Body)
	}

	mustHandle(t, e, text("swap"))
	if msg.LastSent(t).Body != swapUsageMessage {
		t.Errorf("expected usage hint, got %q", msg.LastSent(t).Body)
	}
}

func TestUnknownMessageKindNudges(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	in := models.IncomingMessage{From: testUser, Kind: models.MessageKind("audio")}
	mustHandle(t, e, in)
	if msg.LastSent(t).Body != nonTextNudge {
		t.Errorf("expected nudge, got %q", msg.LastSent(t).Body)
	}
}

func TestInvalidSenderRejected(t *testing.T) {
	e, _, _ := newTestEngine(nil)
	err := e.HandleIncoming(context.Background(), models.IncomingMessage{From: "123", Kind: models.MessageKindText, Text: "hi"})
	if err == nil {
		t.Error("expected error for invalid sender")
	}
}

func TestMissingDisplayNameFallsBack(t *testing.T) {
	e, _, msg := newTestEngine(nil)
	mustHandle(t, e, models.IncomingMessage{From: testUser, Kind: models.MessageKindText, Text: "hi"})
	if !strings.Contains(msg.LastSent(t).Body, "Welcome to Cart Check, Friend") {
		t.Errorf("expected fallback name: %q", msg.LastSent(t).Body)
	}
}
