package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
	"github.com/BTreeMap/LeadRelay/internal/relay"
)

// healthResponse is the body of GET /.
type healthResponse struct {
	Status      string       `json:"status"`
	Timestamp   string       `json:"timestamp"`
	Env         string       `json:"env,omitempty"`
	Environment relay.Status `json:"environment"`
	MissingVars []string     `json:"missingVars"`
	StoreOK     *bool        `json:"store_reachable,omitempty"`
}

// healthHandler reports liveness and which collaborators are configured.
// It always answers 200 unless ?strict=1 is set and the relay is degraded.
// Strict checks also ping the store.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	st := s.relay.Status()
	resp := healthResponse{
		Status:      "ok",
		Timestamp:   s.now().UTC().Format(time.RFC3339),
		Env:         s.environment,
		Environment: st,
		MissingVars: st.Missing,
	}
	if resp.MissingVars == nil {
		resp.MissingVars = []string{}
	}
	strict := r.URL.Query().Get("strict")
	isStrict := strict == "1" || strict == "true"
	healthy := st.Ready
	if isStrict && st.Store {
		ctx, cancel := context.WithTimeout(r.Context(), DefaultPingTimeout)
		err := s.relay.Ping(ctx)
		cancel()
		reachable := err == nil
		resp.StoreOK = &reachable
		if err != nil {
			slog.Warn("Server.healthHandler: store ping failed", "error", err)
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		if isStrict {
			code = http.StatusServiceUnavailable
		}
	}
	writeJSONResponse(w, code, resp)
}

// smsHandler handles the inbound SMS webhook. The provider ignores the body,
// so every outcome is a bare status code.
func (s *Server) smsHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)
	defer r.Body.Close()

	msg, params, err := parseInbound(r)
	if err != nil {
		slog.Warn("Server.smsHandler: failed to parse webhook", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.requireSignatures {
		signature := r.Header.Get("X-Twilio-Signature")
		if s.signatures == nil || !s.signatures.Validate(s.webhookURL(r), params, signature) {
			slog.Warn("Server.smsHandler: invalid webhook signature", "from", msg.From)
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	slog.Debug("Server.smsHandler: inbound message", "from", msg.From, "to", msg.To, "sid", msg.MessageSID)
	// Processing is not cancelled when the provider hangs up.
	if err := s.relay.HandleInbound(context.WithoutCancel(r.Context()), msg); err != nil {
		status := apperrors.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Server.smsHandler: processing failed", "from", msg.From, "error", err)
		} else {
			slog.Warn("Server.smsHandler: rejected", "from", msg.From, "error", err)
		}
		w.WriteHeader(status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// parseInbound reads a form-encoded or JSON webhook payload. The returned
// params are the flattened form values used for signature validation.
func parseInbound(r *http.Request) (models.InboundMessage, map[string]string, error) {
	var msg models.InboundMessage
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil && err != io.EOF {
			return msg, nil, err
		}
		return msg, map[string]string{}, nil
	}

	if err := r.ParseForm(); err != nil {
		return msg, nil, err
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	msg = models.InboundMessage{
		From:       r.PostForm.Get("From"),
		To:         r.PostForm.Get("To"),
		Body:       r.PostForm.Get("Body"),
		MessageSID: r.PostForm.Get("MessageSid"),
	}
	return msg, params, nil
}

// webhookURL rebuilds the URL the provider signed.
func (s *Server) webhookURL(r *http.Request) string {
	if s.publicBaseURL != "" {
		return strings.TrimRight(s.publicBaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// sendInitialHandler starts conversations. A body with a phone initiates that
// single staged lead; an empty body sweeps every staged lead.
func (s *Server) sendInitialHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "Failed to read request body"})
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("{}")) {
		s.sweep(w, r)
		return
	}

	var req models.InitialRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Warn("Server.sendInitialHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON format"})
		return
	}

	// Once a lead is promoted the initial message must still go out.
	res, err := s.relay.SendInitial(context.WithoutCancel(r.Context()), req)
	if err != nil {
		slog.Warn("Server.sendInitialHandler: initiation failed", "phone", req.Phone, "error", err)
		writeError(w, err)
		return
	}
	if res.AlreadyExists {
		writeJSONResponse(w, http.StatusOK, initialResponse{Success: true, Message: "Lead already exists", LeadID: res.LeadID, ThreadID: res.ThreadID})
		return
	}
	slog.Info("Server.sendInitialHandler: initial message sent", "lead_id", res.LeadID, "thread_id", res.ThreadID)
	writeJSONResponse(w, http.StatusOK, initialResponse{Success: true, LeadID: res.LeadID, ThreadID: res.ThreadID})
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.relay.SweepPending(context.WithoutCancel(r.Context()))
	if err != nil {
		slog.Error("Server.sendInitialHandler: sweep failed", "error", err)
		writeError(w, err)
		return
	}
	if len(res.Inserted)+len(res.NotInserted)+len(res.Failed) == 0 {
		writeJSONResponse(w, http.StatusOK, sweepResponse{Success: true, Message: "No new leads"})
		return
	}
	writeJSONResponse(w, http.StatusOK, sweepResponse{Success: true, SweepResult: res})
}
