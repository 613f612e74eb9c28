package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"

	"github.com/user/smsrelay/internal/phone"
	"github.com/user/smsrelay/internal/router"
	"github.com/user/smsrelay/internal/types"
)

// emptyTwiML acknowledges an inbound SMS without replying to it.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// optOutKeywords are the carrier-standard words that end SMS delivery.
var optOutKeywords = map[string]bool{
	"STOP":        true,
	"STOPALL":     true,
	"UNSUBSCRIBE": true,
	"CANCEL":      true,
	"END":         true,
	"QUIT":        true,
}

// OptOutHandler removes every subscription held by a phone number.
type OptOutHandler interface {
	CarrierOptOut(ctx context.Context, number string) ([]types.Subscriber, error)
}

// Notifier tells users that their subscriptions changed.
type Notifier interface {
	Notify(ctx context.Context, subs []types.Subscriber, text string) (int, error)
}

// Options configures the server. AuthToken enables Twilio signature checks
// against PublicURL.
type Options struct {
	AuthToken string
	PublicURL string
}

type signatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// Server is a lightweight HTTP handler for health, status and inbound SMS.
type Server struct {
	store     types.ChannelStore
	optOut    OptOutHandler
	notifier  Notifier
	validator signatureValidator
	publicURL string
	mux       *http.ServeMux
}

// NewServer creates a Server. notifier may be nil.
func NewServer(store types.ChannelStore, optOut OptOutHandler, notifier Notifier, opts Options) *Server {
	s := &Server{
		store:     store,
		optOut:    optOut,
		notifier:  notifier,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		mux:       http.NewServeMux(),
	}
	if opts.AuthToken != "" {
		v := client.NewRequestValidator(opts.AuthToken)
		s.validator = &v
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/guilds/{guild}/status", s.handleGuildStatus)
	s.mux.HandleFunc("POST /sms/inbound", s.handleInboundSMS)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleGuildStatus(w http.ResponseWriter, r *http.Request) {
	guild := types.GuildID(r.PathValue("guild"))
	if guild == "" {
		http.Error(w, `{"error":"guild required"}`, http.StatusBadRequest)
		return
	}

	status, err := s.store.GuildStatus(r.Context(), guild)
	if err != nil {
		slog.Error("guild status failed", "guild_id", guild, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		url := s.publicURL + r.URL.RequestURI()
		if !s.validator.Validate(url, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("rejected inbound sms with bad signature", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	keyword := strings.ToUpper(strings.TrimSpace(r.PostForm.Get("Body")))
	if optOutKeywords[keyword] {
		s.processOptOut(r.Context(), r.PostForm.Get("From"))
	}

	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(emptyTwiML))
}

func (s *Server) processOptOut(ctx context.Context, from string) {
	number, err := phone.Canonical(from)
	if err != nil {
		slog.Debug("opt-out from unrecognised number", "error", err)
		return
	}

	removed, err := s.optOut.CarrierOptOut(ctx, number)
	if err != nil {
		slog.Error("carrier opt-out failed", "error", err)
		return
	}
	if len(removed) == 0 || s.notifier == nil {
		return
	}

	sent, err := s.notifier.Notify(ctx, removed, router.NoticeCarrierOptOut)
	if err != nil {
		slog.Warn("opt-out notification incomplete", "sent", sent, "total", len(removed), "error", err)
	}
}
