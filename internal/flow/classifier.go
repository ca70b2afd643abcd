// Package flow: the vision classifier adapter.
//
// The adapter owns the prompt contract towards the multimodal model and the
// response-parsing contract back from it. It performs no retries; a single
// failed call yields a single error passed to the caller.
package flow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kindatcart/cartcheck/internal/models"
)

// Classifier produces a structured cart analysis for an image and a profile.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mediaType string, profile *models.UserProfile) (*models.CartAnalysis, error)
}

// visionClient is the minimal surface the classifier needs from the GenAI client.
type visionClient interface {
	AnalyzeImage(ctx context.Context, imageB64, mediaType, prompt string) (string, error)
}

// UnparsableAnalysisError indicates the model's output could not be parsed or
// validated as a cart analysis. Raw retains the model text for diagnostics
// only and must never be shown to the end user.
type UnparsableAnalysisError struct {
	Raw    string
	Reason string
}

func (e *UnparsableAnalysisError) Error() string {
	return fmt.Sprintf("unparsable cart analysis: %s", e.Reason)
}

// CartClassifier submits cart photos to a vision model and parses the
// structured classification out of its free-form reply.
type CartClassifier struct {
	vision visionClient
}

// NewCartClassifier creates a classifier backed by the given vision client.
func NewCartClassifier(vision visionClient) *CartClassifier {
	return &CartClassifier{vision: vision}
}

// BuildPrompt assembles the instruction block sent alongside the image.
// The wording is part of the model contract; the JSON shape it specifies is
// what parseAnalysis validates against.
func BuildPrompt(profile *models.UserProfile) string {
	goalsStr := "general health"
	if len(profile.HealthGoals) > 0 {
		goalsStr = strings.Join(profile.HealthGoals, ", ")
	}
	restrictionsStr := "none specified"
	if len(profile.Restrictions) > 0 {
		restrictionsStr = strings.Join(profile.Restrictions, ", ")
	}

	return fmt.Sprintf(`You are a friendly health-conscious grocery shopping assistant called "Cart Check".

Analyze this shopping cart image and identify the food items visible.

USER'S HEALTH PROFILE:
- Health Goals: %s
- Dietary Restrictions: %s

For each item you can identify, categorize it as:
1. GOOD - Supports their health goals
2. OKAY - Neutral, fine in moderation
3. RECONSIDER - Conflicts with their goals or restrictions

For RECONSIDER items, suggest a specific healthier alternative they could swap it for.

Respond in this exact JSON format:
{
    "items_found": [
        {
            "name": "item name",
            "category": "GOOD" or "OKAY" or "RECONSIDER",
            "reason": "brief reason (only for RECONSIDER items)",
            "alternative": "suggested swap (only for RECONSIDER items)"
        }
    ],
    "health_score": 7,
    "encouragement": "A brief, friendly encouraging message"
}

The health_score is 1-10 based on overall cart healthiness for this user.

Be warm, supportive, and non-judgmental. Focus on empowering healthier choices, not shaming.
If you can't identify items clearly, mention that and provide general guidance.`, goalsStr, restrictionsStr)
}

// Classify submits the image with the user's profile context and returns the
// validated analysis. Parse and validation failures return an
// *UnparsableAnalysisError carrying the raw model text.
func (c *CartClassifier) Classify(ctx context.Context, image []byte, mediaType string, profile *models.UserProfile) (*models.CartAnalysis, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image payload cannot be empty")
	}

	imageB64 := base64.StdEncoding.EncodeToString(image)
	prompt := BuildPrompt(profile)

	slog.Debug("CartClassifier submitting image", "user", profile.ID, "image_bytes", len(image), "media_type", mediaType)
	raw, err := c.vision.AnalyzeImage(ctx, imageB64, mediaType, prompt)
	if err != nil {
		slog.Error("CartClassifier vision call failed", "error", err, "user", profile.ID)
		return nil, fmt.Errorf("vision analysis failed: %w", err)
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		slog.Error("CartClassifier failed to parse model output", "error", err, "user", profile.ID)
		return nil, err
	}
	slog.Info("CartClassifier analysis parsed", "user", profile.ID, "items", len(analysis.Items), "score", analysis.HealthScore)
	return analysis, nil
}

// parseAnalysis extracts the JSON object embedded in the model's reply and
// validates it structurally. Conversational wrapping text around the JSON is
// tolerated; anything that fails to parse or validate is an
// *UnparsableAnalysisError.
func parseAnalysis(raw string) (*models.CartAnalysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, &UnparsableAnalysisError{Raw: raw, Reason: "no JSON object found"}
	}

	var analysis models.CartAnalysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return nil, &UnparsableAnalysisError{Raw: raw, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if err := validateAnalysis(&analysis); err != nil {
		return nil, &UnparsableAnalysisError{Raw: raw, Reason: err.Error()}
	}
	return &analysis, nil
}

// validateAnalysis enforces the JSON-shape contract the prompt only asks for:
// item names present, categories in the enum, score absent or within range.
func validateAnalysis(a *models.CartAnalysis) error {
	for i := range a.Items {
		item := &a.Items[i]
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("item %d has no name", i)
		}
		item.Category = models.Category(strings.ToUpper(string(item.Category)))
		if !models.IsValidCategory(item.Category) {
			return fmt.Errorf("item %q has invalid category %q", item.Name, item.Category)
		}
	}
	// Zero means the model omitted the score; the formatter applies the default.
	if a.HealthScore != 0 && (a.HealthScore < models.MinHealthScore || a.HealthScore > models.MaxHealthScore) {
		return fmt.Errorf("health score %d out of range", a.HealthScore)
	}
	return nil
}
