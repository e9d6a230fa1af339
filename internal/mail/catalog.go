package mail

import (
	"strings"

	"github.com/emersion/go-imap"
)

var specialUseAttrs = map[string]SpecialUse{
	strings.ToLower(imap.AllAttr):       SpecialUseAll,
	strings.ToLower(imap.ArchiveAttr):   SpecialUseArchive,
	strings.ToLower(imap.DraftsAttr):    SpecialUseDrafts,
	strings.ToLower(imap.FlaggedAttr):   SpecialUseFlagged,
	strings.ToLower(imap.JunkAttr):      SpecialUseJunk,
	strings.ToLower(imap.SentAttr):      SpecialUseSent,
	strings.ToLower(imap.TrashAttr):     SpecialUseTrash,
	strings.ToLower(imap.ImportantAttr): SpecialUseImportant,
	`\spam`:                             SpecialUseJunk,
}

// ListMailboxes runs a single LIST "" "*" and returns the folders in the order
// the server reported them.
func ListMailboxes(s *Session) ([]Mailbox, error) {
	const op = "list_mailboxes"
	ch := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- s.cli.List("", "*", ch)
	}()

	out := make([]Mailbox, 0, 16)
	seen := make(map[string]struct{})
	for info := range ch {
		if info == nil {
			continue
		}
		if _, dup := seen[info.Name]; dup {
			continue
		}
		seen[info.Name] = struct{}{}
		out = append(out, mailboxFromInfo(info))
	}
	if err := <-done; err != nil {
		return nil, classifyIMAP(op, "", err, KindConnection)
	}
	return out, nil
}

func mailboxFromInfo(info *imap.MailboxInfo) Mailbox {
	mb := Mailbox{
		Name:        info.Name,
		Delimiter:   info.Delimiter,
		DisplayName: displayName(info.Name, info.Delimiter),
		Attributes:  append([]string{}, info.Attributes...),
		Selectable:  true,
	}
	for _, attr := range info.Attributes {
		if strings.EqualFold(attr, imap.NoSelectAttr) || strings.EqualFold(attr, `\NonExistent`) {
			mb.Selectable = false
		}
		if use, ok := specialUseAttrs[strings.ToLower(attr)]; ok && mb.SpecialUse == SpecialUseNone {
			mb.SpecialUse = use
		}
	}
	if mb.SpecialUse == SpecialUseNone && strings.EqualFold(info.Name, "INBOX") {
		mb.DisplayName = "Inbox"
	}
	return mb
}

func displayName(name, delim string) string {
	if delim == "" {
		return name
	}
	if i := strings.LastIndex(name, delim); i >= 0 && i < len(name)-len(delim) {
		return name[i+len(delim):]
	}
	return name
}
