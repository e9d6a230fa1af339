package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mailbag/internal/mail"
	"mailbag/internal/middleware"
	"mailbag/internal/util"
)

func (h *Handlers) ListMailboxes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Mail().ListMailboxes(r.Context())
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, items)
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	mbox, ok := mailboxParam(r)
	if !ok {
		badRequest(w, r, "mailbox is required")
		return
	}
	profile, ok := h.profileParam(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Mail().ListMessages(r.Context(), mbox, profile)
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, items)
}

// profileParam reads ?profile=. An empty value leaves the choice to the
// configured account.
func (h *Handlers) profileParam(w http.ResponseWriter, r *http.Request) (mail.Profile, bool) {
	q := strings.TrimSpace(r.URL.Query().Get("profile"))
	if q == "" {
		return "", true
	}
	p, err := mail.ParseProfile(q)
	if err != nil {
		badRequest(w, r, err.Error())
		return "", false
	}
	return p, true
}

func (h *Handlers) ListGmailMessages(w http.ResponseWriter, r *http.Request) {
	mbox, ok := mailboxParam(r)
	if !ok {
		badRequest(w, r, "mailbox is required")
		return
	}
	items, err := h.svc.Mail().ListMessagesOfGmail(r.Context(), mbox)
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, items)
}

func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	mbox, ok := mailboxParam(r)
	if !ok {
		badRequest(w, r, "mailbox is required")
		return
	}
	uid, ok := uidParam(r)
	if !ok {
		badRequest(w, r, "id must be a positive message uid")
		return
	}
	h.serveBody(w, r, mbox, uid)
}

func (h *Handlers) GetMessageByRef(w http.ResponseWriter, r *http.Request) {
	mbox, uid, err := mail.DecodeMessageRef(chi.URLParam(r, "ref"))
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	h.serveBody(w, r, mbox, uid)
}

func (h *Handlers) serveBody(w http.ResponseWriter, r *http.Request, mbox string, uid uint32) {
	body, err := h.svc.Mail().GetMessageBody(r.Context(), mbox, uid)
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	writeBody(w, r, body)
}

// writeBody sends the rendered HTML, or the full MessageBody as JSON when the
// caller asks for format=json.
func writeBody(w http.ResponseWriter, r *http.Request, body mail.MessageBody) {
	if body.Degraded {
		w.Header().Set("X-Message-Degraded", "true")
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		util.WriteJSON(w, 200, body)
		return
	}
	util.WriteHTML(w, 200, body.HTML)
}

func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	mbox, ok := mailboxParam(r)
	if !ok {
		badRequest(w, r, "mailbox is required")
		return
	}
	uid, ok := uidParam(r)
	if !ok {
		badRequest(w, r, "id must be a positive message uid")
		return
	}
	h.deleteMessage(w, r, mbox, uid)
}

func (h *Handlers) DeleteMessageByRef(w http.ResponseWriter, r *http.Request) {
	mbox, uid, err := mail.DecodeMessageRef(chi.URLParam(r, "ref"))
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	h.deleteMessage(w, r, mbox, uid)
}

func (h *Handlers) deleteMessage(w http.ResponseWriter, r *http.Request, mbox string, uid uint32) {
	if err := h.svc.Mail().DeleteMessage(r.Context(), mbox, uid); err != nil {
		h.writeMailError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req mail.OutgoingMessage
	if err := util.DecodeJSON(r, &req, maxSendBodyBytes); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	if len(req.To) == 0 {
		badRequest(w, r, "at least one recipient is required")
		return
	}
	if err := h.svc.Mail().SendMessage(r.Context(), req); err != nil {
		h.writeMailError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "sent"})
}

func (h *Handlers) SelectedMailbox(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Mail().SelectedMailbox(r.Context())
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, st)
}

func (h *Handlers) SelectMailbox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mailbox string `json:"mailbox"`
	}
	if err := util.DecodeJSON(r, &req, maxSmallBodyBytes); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	if strings.TrimSpace(req.Mailbox) == "" {
		badRequest(w, r, "mailbox is required")
		return
	}
	st, err := h.svc.Mail().SelectMailbox(r.Context(), req.Mailbox)
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, st)
}

func (h *Handlers) CloseSelected(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Mail().CloseSelected(); err != nil {
		// The session is dropped even when LOGOUT fails.
		h.log.Debug("close selected mailbox",
			zap.String("request_id", middleware.RequestID(r.Context())),
			zap.Error(err),
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SelectedMessages(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profileParam(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Mail().SelectedMailboxMessages(r.Context(), profile)
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, items)
}

func (h *Handlers) SelectedMessage(w http.ResponseWriter, r *http.Request) {
	uid, ok := uidParam(r)
	if !ok {
		badRequest(w, r, "id must be a positive message uid")
		return
	}
	body, err := h.svc.Mail().SelectedMailboxMessageBody(r.Context(), uid)
	if err != nil {
		h.writeMailError(w, r, err)
		return
	}
	writeBody(w, r, body)
}
