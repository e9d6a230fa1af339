package mail

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EncodeMessageRef packs a mailbox name and UID into one URL-safe token.
// UIDs alone are only unique inside their mailbox.
func EncodeMessageRef(mailbox string, uid uint32) string {
	raw := fmt.Sprintf("%d|%s", uid, mailbox)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeMessageRef(ref string) (mailbox string, uid uint32, err error) {
	bad := newError(KindInvalid, "decode_ref", "", fmt.Errorf("invalid message ref %q", ref))
	b, err := base64.RawURLEncoding.DecodeString(ref)
	if err != nil {
		return "", 0, bad
	}
	parts := strings.SplitN(string(b), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", 0, bad
	}
	u, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || u == 0 {
		return "", 0, bad
	}
	return parts[1], uint32(u), nil
}
