package mail

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedMessage is one row of a scripted mailbox. fetch holds the FETCH
// attributes without the parentheses; labels is appended as X-GM-LABELS
// when the client asks for it.
type scriptedMessage struct {
	uid    uint32
	fetch  string
	labels string
}

// scriptedIMAP answers a fixed subset of IMAP4rev1 with canned replies so
// tests can drive server behavior the memory backend cannot produce:
// Gmail extensions, UIDPLUS and refused STORE or EXPUNGE.
type scriptedIMAP struct {
	caps      []string
	messages  []scriptedMessage
	storeNO   bool
	expungeNO bool

	mu   sync.Mutex
	seen []string
}

func (s *scriptedIMAP) start(t *testing.T) ServerInfo {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return ServerInfo{
		IMAP:     Endpoint{Host: "127.0.0.1", Port: l.Addr().(*net.TCPAddr).Port},
		Username: testUser,
		Secret:   testPass,
	}
}

// commands returns the command names received so far, with UID folded in
// (for example "UID EXPUNGE").
func (s *scriptedIMAP) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.seen...)
}

func (s *scriptedIMAP) serve(conn net.Conn) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	reply := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format+"\r\n", args...)
	}
	capability := strings.Join(append([]string{"IMAP4rev1"}, s.caps...), " ")
	reply("* OK [CAPABILITY %s] scripted server ready", capability)
	_ = w.Flush()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimRight(line, "\r\n"))
		if len(fields) < 2 {
			continue
		}
		tag, name := fields[0], strings.ToUpper(fields[1])
		if name == "UID" && len(fields) > 2 {
			name += " " + strings.ToUpper(fields[2])
		}
		s.mu.Lock()
		s.seen = append(s.seen, name)
		s.mu.Unlock()

		switch name {
		case "LOGIN":
			reply("%s OK [CAPABILITY %s] logged in", tag, capability)
		case "CAPABILITY":
			reply("* CAPABILITY %s", capability)
			reply("%s OK done", tag)
		case "SELECT", "EXAMINE":
			reply("* FLAGS (\\Seen \\Deleted)")
			reply("* %d EXISTS", len(s.messages))
			reply("* OK [UIDVALIDITY 7] ok")
			if name == "EXAMINE" {
				reply("%s OK [READ-ONLY] done", tag)
			} else {
				reply("%s OK [READ-WRITE] done", tag)
			}
		case "UID FETCH":
			gmail := strings.Contains(strings.ToUpper(line), "X-GM-LABELS")
			for i, m := range s.messages {
				attrs := fmt.Sprintf("UID %d %s", m.uid, m.fetch)
				if gmail {
					attrs += " X-GM-LABELS (" + m.labels + ")"
				}
				reply("* %d FETCH (%s)", i+1, attrs)
			}
			reply("%s OK done", tag)
		case "UID SEARCH":
			uids := make([]string, 0, len(s.messages))
			for _, m := range s.messages {
				uids = append(uids, fmt.Sprint(m.uid))
			}
			reply("* SEARCH %s", strings.Join(uids, " "))
			reply("%s OK done", tag)
		case "UID STORE":
			if s.storeNO {
				reply("%s NO store refused", tag)
			} else {
				reply("%s OK done", tag)
			}
		case "EXPUNGE", "UID EXPUNGE":
			if s.expungeNO {
				reply("%s NO expunge failed", tag)
			} else {
				reply("* 1 EXPUNGE")
				reply("%s OK done", tag)
			}
		case "LOGOUT":
			reply("* BYE bye")
			reply("%s OK done", tag)
			_ = w.Flush()
			return
		default:
			reply("%s BAD unsupported", tag)
		}
		_ = w.Flush()
	}
}

func scriptedEnvelope(subject, fromMailbox string) string {
	return fmt.Sprintf(`FLAGS (\Seen) INTERNALDATE "11-May-2016 14:31:59 +0000" RFC822.SIZE 120 `+
		`ENVELOPE ("Wed, 11 May 2016 14:31:59 +0000" %q ((NIL NIL %q "example.com")) NIL NIL `+
		`((NIL NIL "bob" "example.com")) NIL NIL NIL "<%s@example.com>")`, subject, fromMailbox, subject)
}
