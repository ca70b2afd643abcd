package models

import (
	"encoding/json"
	"testing"
)

func TestProfileComplete(t *testing.T) {
	cases := []struct {
		name    string
		profile UserProfile
		want    bool
	}{
		{"goals and empty restrictions explicitly set", UserProfile{HealthGoals: []string{"Lose weight"}, Restrictions: []string{}, RestrictionsSet: true}, true},
		{"goals and non-empty restrictions", UserProfile{HealthGoals: []string{"Lose weight"}, Restrictions: []string{"No salt"}, RestrictionsSet: true}, true},
		{"goals set but restrictions step never visited", UserProfile{HealthGoals: []string{"Lose weight"}}, false},
		{"no goals", UserProfile{RestrictionsSet: true}, false},
		{"blank profile", UserProfile{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.profile.Complete(); got != tc.want {
				t.Errorf("Complete() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProfileCompleteNilReceiver(t *testing.T) {
	var p *UserProfile
	if p.Complete() {
		t.Error("nil profile should not report complete")
	}
}

func TestIsValidState(t *testing.T) {
	for _, s := range []StateType{StateNew, StateAwaitingGoals, StateAwaitingRestrictions, StateReady} {
		if !IsValidState(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if IsValidState(StateType("onboarding")) {
		t.Error("unexpected state accepted")
	}
}

func TestIsValidCategory(t *testing.T) {
	for _, c := range []Category{CategoryGood, CategoryOkay, CategoryReconsider} {
		if !IsValidCategory(c) {
			t.Errorf("expected %q to be valid", c)
		}
	}
	if IsValidCategory(Category("BAD")) {
		t.Error("unexpected category accepted")
	}
}

func TestReconsiderCount(t *testing.T) {
	a := CartAnalysis{Items: []CartItem{
		{Name: "spinach", Category: CategoryGood},
		{Name: "chips", Category: CategoryReconsider},
		{Name: "soda", Category: CategoryReconsider},
	}}
	if got := a.ReconsiderCount(); got != 2 {
		t.Errorf("ReconsiderCount() = %d, want 2", got)
	}
}

func TestWebhookPayloadParsing(t *testing.T) {
	raw := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{"from": "15551234567", "type": "text", "text": {"body": "hi"}}],
					"contacts": [{"profile": {"name": "Asha"}}]
				}
			}]
		}]
	}`
	var p WebhookPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	msg := p.Entry[0].Changes[0].Value.Messages[0]
	if msg.From != "15551234567" || msg.Type != "text" || msg.Text.Body != "hi" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if p.Entry[0].Changes[0].Value.Contacts[0].Profile.Name != "Asha" {
		t.Error("contact name not parsed")
	}
}

func TestWebhookPayloadStatusesOnly(t *testing.T) {
	// Delivery-status webhooks have no messages array; parsing must not fail.
	raw := `{"entry": [{"changes": [{"value": {"statuses": [{"id": "wamid.x"}]}}]}]}`
	var p WebhookPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(p.Entry[0].Changes[0].Value.Messages) != 0 {
		t.Error("expected no messages")
	}
}
