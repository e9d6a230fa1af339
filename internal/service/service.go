package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"mailbag/internal/config"
	"mailbag/internal/mail"
	"mailbag/internal/models"
	"mailbag/internal/store"
)

var ErrInvalidContact = errors.New("invalid contact")

const (
	maxContactNameLen  = 255
	maxContactEmailLen = 320
)

type probeFunc func(ctx context.Context, ep mail.Endpoint) error

type Service struct {
	cfg       config.Config
	st        *store.Store
	mail      mail.Client
	probeIMAP probeFunc
	probeSMTP probeFunc
	now       func() time.Time
}

func New(cfg config.Config, st *store.Store, m mail.Client) *Service {
	if m == nil {
		m = mail.NoopClient{}
	}
	return &Service{
		cfg:       cfg,
		st:        st,
		mail:      m,
		probeIMAP: mail.ProbeIMAP,
		probeSMTP: mail.ProbeSMTP,
		now:       time.Now,
	}
}

func (s *Service) Mail() mail.Client { return s.mail }

func (s *Service) ListContacts(ctx context.Context) ([]models.Contact, error) {
	return s.st.ListContacts(ctx)
}

// AddContact validates the address and stores it. An empty name falls back
// to the display name in the address, then to the address itself.
func (s *Service) AddContact(ctx context.Context, name, email string) (models.Contact, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Contact{}, fmt.Errorf("%w: email is required", ErrInvalidContact)
	}
	if len(email) > maxContactEmailLen {
		return models.Contact{}, fmt.Errorf("%w: email is too long", ErrInvalidContact)
	}
	addr, err := gomail.ParseAddress(email)
	if err != nil {
		return models.Contact{}, fmt.Errorf("%w: invalid email %q", ErrInvalidContact, email)
	}
	if name == "" {
		name = strings.TrimSpace(addr.Name)
	}
	if name == "" {
		name = addr.Address
	}
	if len(name) > maxContactNameLen {
		return models.Contact{}, fmt.Errorf("%w: name is too long", ErrInvalidContact)
	}
	return s.st.AddContact(ctx, name, strings.ToLower(addr.Address))
}

func (s *Service) GetContact(ctx context.Context, id string) (models.Contact, error) {
	if strings.TrimSpace(id) == "" {
		return models.Contact{}, store.ErrNotFound
	}
	return s.st.GetContact(ctx, id)
}

func (s *Service) DeleteContact(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrNotFound
	}
	return s.st.DeleteContact(ctx, id)
}

type ComponentStatus struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Readiness struct {
	Status     string                     `json:"status"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Components map[string]ComponentStatus `json:"components"`
}

func (r Readiness) OK() bool { return r.Status == "ready" }

// Ready checks the contacts database and, when an account is configured,
// that both mail servers answer with a greeting.
func (s *Service) Ready(ctx context.Context) Readiness {
	out := Readiness{
		Status:     "ready",
		CheckedAt:  s.now().UTC(),
		Components: map[string]ComponentStatus{},
	}
	check := func(name string, err error) {
		if err != nil {
			out.Components[name] = ComponentStatus{OK: false, Error: err.Error()}
			out.Status = "degraded"
			return
		}
		out.Components[name] = ComponentStatus{OK: true}
	}

	check("contacts_db", s.st.Ping(ctx))
	if !s.cfg.MailConfigured() {
		out.Components["imap"] = ComponentStatus{OK: true, Skipped: true}
		out.Components["smtp"] = ComponentStatus{OK: true, Skipped: true}
		return out
	}
	info := s.cfg.ServerInfo()
	check("imap", s.probeIMAP(ctx, info.IMAP))
	check("smtp", s.probeSMTP(ctx, info.SMTP))
	return out
}
