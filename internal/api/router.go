package api

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"mailbag/internal/config"
	"mailbag/internal/mail"
	"mailbag/internal/middleware"
	"mailbag/internal/rate"
	"mailbag/internal/service"
	"mailbag/internal/util"
	"mailbag/internal/version"
)

type Handlers struct {
	cfg     config.Config
	svc     *service.Service
	limiter *rate.Limiter
	log     *zap.Logger
}

const (
	maxSendBodyBytes  = 2 << 20
	maxSmallBodyBytes = 8 << 10
)

func NewRouter(cfg config.Config, svc *service.Service, log *zap.Logger) http.Handler {
	h := &Handlers{
		cfg:     cfg,
		svc:     svc,
		limiter: rate.NewLimiter(cfg.SendRatePerMinute, time.Minute),
		log:     log,
	}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(log, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-Message-Degraded", "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]any{"status": "ok", "version": version.Current()})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ready := h.svc.Ready(r.Context())
		if ready.OK() {
			util.WriteJSON(w, 200, ready)
			return
		}
		util.WriteJSON(w, 503, ready)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/mailboxes", h.ListMailboxes)
		r.Get("/mailboxes/GMAIL/{mailbox}", h.ListGmailMessages)
		r.Get("/mailboxes/{mailbox}", h.ListMessages)

		r.Get("/messages/{mailbox}/{id}", h.GetMessage)
		r.Delete("/messages/{mailbox}/{id}", h.DeleteMessage)
		r.Get("/refs/{ref}", h.GetMessageByRef)
		r.Delete("/refs/{ref}", h.DeleteMessageByRef)
		r.With(middleware.RateLimit(h.limiter, "send", cfg.TrustProxy)).Post("/messages", h.SendMessage)

		r.Get("/selected", h.SelectedMailbox)
		r.Post("/selected", h.SelectMailbox)
		r.Delete("/selected", h.CloseSelected)
		r.Get("/selected/messages", h.SelectedMessages)
		r.Get("/selected/messages/{id}", h.SelectedMessage)

		r.Get("/contacts", h.ListContacts)
		r.Post("/contacts", h.AddContact)
		r.Get("/contacts/{id}", h.GetContact)
		r.Delete("/contacts/{id}", h.DeleteContact)
	})

	r.Get("/*", h.staticHandler())
	return r
}

func (h *Handlers) staticHandler() http.HandlerFunc {
	root := strings.TrimSpace(h.cfg.WebRoot)
	fs := http.FileServer(http.Dir(root))
	return func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if root == "" || strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/health/") {
			http.NotFound(w, r)
			return
		}
		if p == "/" {
			index := filepath.Join(root, "index.html")
			if _, err := os.Stat(index); err != nil {
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	}
}

// writeMailError maps a mail-layer failure onto the HTTP error envelope.
func (h *Handlers) writeMailError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	if errors.Is(err, mail.ErrSMTPSenderRejected) {
		util.WriteError(w, http.StatusUnprocessableEntity, "sender_rejected", "the mail server refused the sender address", rid)
		return
	}
	status, code := http.StatusInternalServerError, "internal_error"
	switch mail.KindOf(err) {
	case mail.KindAuth:
		status, code = http.StatusUnauthorized, "mail_auth_failed"
	case mail.KindConnection:
		status, code = http.StatusBadGateway, "mail_unavailable"
	case mail.KindNotFound:
		status, code = http.StatusNotFound, "not_found"
	case mail.KindDecode:
		status, code = http.StatusBadGateway, "decode_error"
	case mail.KindSend:
		status, code = http.StatusBadGateway, "smtp_error"
	case mail.KindPurge:
		status, code = http.StatusInternalServerError, "purge_failed"
	case mail.KindNoSelection:
		status, code = http.StatusConflict, "no_selection"
	case mail.KindInvalid:
		status, code = http.StatusBadRequest, "bad_request"
	}
	if status >= http.StatusInternalServerError {
		h.log.Warn("mail request failed",
			zap.String("code", code),
			zap.String("request_id", rid),
			zap.Error(err),
		)
	}
	util.WriteError(w, status, code, err.Error(), rid)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	util.WriteError(w, http.StatusBadRequest, "bad_request", msg, middleware.RequestID(r.Context()))
}

// mailboxParam returns the decoded {mailbox} segment. Clients escape the
// hierarchy delimiter as %2F.
func mailboxParam(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "mailbox")
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}
	name = strings.TrimSpace(name)
	return name, name != ""
}

func uidParam(r *http.Request) (uint32, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint32(n), true
}
