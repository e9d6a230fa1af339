package mail

import (
	"errors"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/commands"
	"go.uber.org/zap"
)

const uidPlusCapability = "UIDPLUS"

// DeleteMessage flags uid as \Deleted in mailbox and expunges it. A message
// that is missing or already flagged reports KindNotFound. Once the flag is
// stored, any EXPUNGE failure is KindPurge: the message is still present
// and marked. With UIDPLUS only uid is expunged; otherwise the mailbox-wide
// EXPUNGE also removes messages other clients flagged.
func DeleteMessage(s *Session, mailbox string, uid uint32) error {
	const op = "delete_message"
	if uid == 0 {
		return newError(KindInvalid, op, mailbox, errors.New("message id must be positive"))
	}
	if _, err := s.selectMailbox(op, mailbox, false); err != nil {
		return err
	}

	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	criteria := imap.NewSearchCriteria()
	criteria.Uid = seq
	criteria.WithoutFlags = []string{imap.DeletedFlag}
	uids, err := s.cli.UidSearch(criteria)
	if err != nil {
		return classifyIMAP(op, mailbox, err, KindConnection)
	}
	if !containsUID(uids, uid) {
		return newError(KindNotFound, op, mailbox, errors.New("no message with that id"))
	}

	flags := []interface{}{imap.DeletedFlag}
	if err := s.cli.UidStore(seq, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return classifyIMAP(op, mailbox, err, KindConnection)
	}
	if err := s.expunge(seq); err != nil {
		s.log.Warn("expunge failed after flagging",
			zap.String("mailbox", mailbox), zap.Uint32("uid", uid), zap.Error(err))
		return newError(KindPurge, op, mailbox, err)
	}
	return nil
}

func (s *Session) expunge(seq *imap.SeqSet) error {
	ok, err := s.cli.Support(uidPlusCapability)
	if err != nil {
		return err
	}
	if !ok {
		return s.cli.Expunge(nil)
	}
	cmd := &commands.Uid{Cmd: &imap.Command{Name: "EXPUNGE", Arguments: []interface{}{seq}}}
	status, err := s.cli.Execute(cmd, nil)
	if err != nil {
		return err
	}
	return status.Err()
}

func containsUID(uids []uint32, uid uint32) bool {
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}
