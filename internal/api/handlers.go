// Package api provides HTTP handlers for OrderPipe endpoints.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/BTreeMap/OrderPipe/internal/messaging"
	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/whatsapp"
)

// Webhook delivery outcomes reported to metrics.
const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeInvalid   = "invalid"
)

// emptyTwiML acknowledges a Twilio webhook without sending a reply through TwiML.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// webhookHandler serves GET verification and POST deliveries on /webhook.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && s.opts.VerifyToken != "" && token == s.opts.VerifyToken {
		slog.Info("Server.verifyWebhook: webhook verified")
		writeTextResponse(w, http.StatusOK, "text/plain; charset=utf-8", challenge)
		return
	}
	slog.Warn("Server.verifyWebhook: verification failed", "mode", mode, "token_set", token != "")
	w.WriteHeader(http.StatusForbidden)
}

// webhookEnvelope peeks at the object type before decoding the platform-specific body.
type webhookEnvelope struct {
	Object string `json:"object"`
}

func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	deliveryID := uuid.NewString()
	logger := slog.With("deliveryID", deliveryID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("Server.receiveWebhook: failed to read body", "error", err)
		s.metrics.ObserveWebhook("unknown", outcomeInvalid, 0)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request body"))
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.Warn("Server.receiveWebhook: failed to decode JSON", "error", err)
		s.metrics.ObserveWebhook("unknown", outcomeInvalid, 0)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	var msgs []models.InboundMessage
	switch env.Object {
	case whatsapp.ObjectWhatsApp:
		var payload whatsapp.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			logger.Warn("Server.receiveWebhook: malformed WhatsApp payload", "error", err)
			s.metrics.ObserveWebhook(env.Object, outcomeInvalid, 0)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		msgs = whatsapp.Normalize(payload)
	case whatsapp.ObjectMessenger:
		var payload messaging.MessengerPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			logger.Warn("Server.receiveWebhook: malformed Messenger payload", "error", err)
			s.metrics.ObserveWebhook(env.Object, outcomeInvalid, 0)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		msgs = messaging.NormalizeMessenger(payload)
	default:
		logger.Debug("Server.receiveWebhook: ignoring delivery", "object", env.Object)
		s.metrics.ObserveWebhook(env.Object, outcomeIgnored, 0)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	logger.Debug("Server.receiveWebhook: delivery normalized", "object", env.Object, "messages", len(msgs))
	s.dispatch(r.Context(), logger, msgs)
	s.metrics.ObserveWebhook(env.Object, outcomeProcessed, len(msgs))
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// dispatch hands messages to the engine in delivery order. The platform has already
// delivered the batch, so processing continues even if the caller disconnects.
func (s *Server) dispatch(ctx context.Context, logger *slog.Logger, msgs []models.InboundMessage) {
	ctx = context.WithoutCancel(ctx)
	for _, msg := range msgs {
		if err := s.engine.HandleMessage(ctx, msg); err != nil {
			logger.Error("Server.dispatch: failed to handle message", "userID", msg.UserID, "messageID", msg.MessageID, "error", err)
			continue
		}
		logger.Debug("Server.dispatch: message handled", "userID", msg.UserID, "messageID", msg.MessageID, "type", msg.Type)
	}
}

// twilioWebhookHandler receives Twilio's form-encoded inbound WhatsApp messages.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if s.opts.Twilio == nil {
		slog.Debug("Server.twilioWebhookHandler: Twilio provider not enabled")
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.twilioWebhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	deliveryID := uuid.NewString()
	logger := slog.With("deliveryID", deliveryID)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		logger.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		s.metrics.ObserveWebhook("twilio", outcomeInvalid, 0)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form body"))
		return
	}

	msg, err := s.opts.Twilio.ResolveInbound(r.PostForm.Get("MessageSid"), r.PostForm.Get("From"), r.PostForm.Get("Body"))
	if err != nil {
		logger.Warn("Server.twilioWebhookHandler: invalid sender", "error", err)
		s.metrics.ObserveWebhook("twilio", outcomeInvalid, 0)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	s.dispatch(r.Context(), logger, []models.InboundMessage{msg})
	s.metrics.ObserveWebhook("twilio", outcomeProcessed, 1)
	writeTextResponse(w, http.StatusOK, "application/xml", emptyTwiML)
}

// healthHandler reports whether the database answers a ping. A process-local store is
// reported as "memory".
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.db == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{Status: models.APIStatusError, Database: "disconnected"})
		return
	}
	if v, ok := s.db.(volatileStore); ok && v.Volatile() {
		writeJSONResponse(w, http.StatusOK, healthResponse{Status: models.APIStatusOK, Database: "memory"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		slog.Error("Server.healthHandler: database ping failed", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{Status: models.APIStatusError, Database: "disconnected"})
		return
	}
	writeJSONResponse(w, http.StatusOK, healthResponse{Status: models.APIStatusOK, Database: "connected"})
}
