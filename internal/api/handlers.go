package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kindatcart/cartcheck/internal/models"
)

// webhookHandler routes the WhatsApp webhook endpoint: GET is the provider's
// verification handshake, POST delivers inbound messages.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyWebhook implements the Cloud API subscription handshake: echo
// hub.challenge when the mode is "subscribe" and the token matches, 403
// otherwise.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		slog.Info("Server webhook verified")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("Server failed to write webhook challenge", "error", err)
		}
		return
	}
	slog.Warn("Server webhook verification failed", "mode", mode, "token_match", token == s.verifyToken)
	w.WriteHeader(http.StatusForbidden)
}

// receiveWebhook parses an inbound delivery and dispatches each message to
// the engine in the background. The provider retries on non-200 responses,
// so the endpoint acknowledges even payloads it cannot use.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	var payload models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server received unparsable webhook payload", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	dispatched := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			name := ""
			if len(change.Value.Contacts) > 0 {
				name = change.Value.Contacts[0].Profile.Name
			}
			for _, wm := range change.Value.Messages {
				go s.dispatch(incomingFromWebhook(wm, name))
				dispatched++
			}
		}
	}
	slog.Debug("Server webhook processed", "messages_dispatched", dispatched)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// incomingFromWebhook maps a provider message to the engine's input shape.
// Unrecognized types are passed through unchanged so the engine can nudge
// the sender toward text or photos.
func incomingFromWebhook(wm models.WebhookMessage, name string) models.IncomingMessage {
	msg := models.IncomingMessage{
		From: wm.From,
		Name: name,
		Kind: models.MessageKind(wm.Type),
		Time: time.Now().Unix(),
	}
	switch wm.Type {
	case "text":
		if wm.Text != nil {
			msg.Text = wm.Text.Body
		}
	case "image":
		if wm.Image != nil {
			msg.MediaID = wm.Image.ID
		}
	}
	return msg
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"status":  "healthy",
		"service": "Cart Check Bot",
	}))
}
