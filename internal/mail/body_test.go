package mail

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const htmlOnly = `From: a@example.com
To: b@example.com
Subject: html
Content-Type: text/html; charset=utf-8

<p onclick="steal()">Hello <b>world</b></p><script>alert(1)</script>
`

const plainOnly = `From: a@example.com
To: b@example.com
Subject: plain
Content-Type: text/plain; charset=utf-8

1 < 2 & "quotes"
`

const attachmentOnly = `From: a@example.com
To: b@example.com
Subject: files
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: application/pdf; name="report.pdf"
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--b1--
`

const alternative = `From: a@example.com
To: b@example.com
Subject: alt
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

plain version
--inner
Content-Type: text/html; charset=utf-8
Content-Transfer-Encoding: quoted-printable

<div>html =E2=9C=93 version</div>
--inner--
--outer
Content-Type: image/png
Content-Disposition: attachment; filename="dot.png"
Content-Transfer-Encoding: base64

iVBORw0KGgo=
--outer--
`

const base64Plain = `From: a@example.com
Subject: b64
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: base64

aMOpbGxvIHRoZXJl
`

const latin1Plain = `From: a@example.com
Subject: latin1
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

caf=E9
`

const unknownCharset = `From: a@example.com
Subject: odd
Content-Type: text/plain; charset=x-no-such-charset

raw text survives
`

const unknownEncoding = `From: a@example.com
Subject: odd
Content-Type: text/plain
Content-Transfer-Encoding: x-weird

still readable
`

const badBase64 = `From: a@example.com
Subject: broken
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: base64

!!!!notbase64@@@@
`

func TestRenderMessage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		raw       string
		contains  []string
		excludes  []string
		exact     string
		degraded  bool
		attachCnt int
	}{
		{name: "html_only", raw: htmlOnly, contains: []string{"<b>world</b>"}, excludes: []string{"<script", "onclick", "alert"}},
		{name: "plain_only", raw: plainOnly, contains: []string{"<pre", "1 &lt; 2 &amp; &#34;quotes&#34;"}},
		{name: "attachment_only", raw: attachmentOnly, exact: NoReadableContent, attachCnt: 1},
		{name: "alternative_prefers_html", raw: alternative, contains: []string{"html ✓ version"}, excludes: []string{"plain version"}, attachCnt: 1},
		{name: "base64", raw: base64Plain, contains: []string{"héllo there"}},
		{name: "latin1_quoted_printable", raw: latin1Plain, contains: []string{"café"}},
		{name: "unknown_charset", raw: unknownCharset, contains: []string{"raw text survives"}, degraded: true},
		{name: "unknown_encoding", raw: unknownEncoding, contains: []string{"still readable"}, degraded: true},
		{name: "bad_base64", raw: badBase64, contains: []string{"!!!!notbase64@@@@"}, degraded: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := renderMessage([]byte(crlf(tc.raw)))
			if got.ContentType != "text/html" {
				t.Fatalf("content type = %q", got.ContentType)
			}
			if strings.TrimSpace(got.HTML) == "" {
				t.Fatalf("expected renderable output")
			}
			if tc.exact != "" && got.HTML != tc.exact {
				t.Fatalf("html = %q, want %q", got.HTML, tc.exact)
			}
			for _, want := range tc.contains {
				if !strings.Contains(got.HTML, want) {
					t.Fatalf("html %q does not contain %q", got.HTML, want)
				}
			}
			for _, bad := range tc.excludes {
				if strings.Contains(got.HTML, bad) {
					t.Fatalf("html %q unexpectedly contains %q", got.HTML, bad)
				}
			}
			if got.Degraded != tc.degraded {
				t.Fatalf("degraded = %v, want %v", got.Degraded, tc.degraded)
			}
			if len(got.Attachments) != tc.attachCnt {
				t.Fatalf("attachments = %d, want %d", len(got.Attachments), tc.attachCnt)
			}
		})
	}
}

func TestRenderMessageAttachmentMeta(t *testing.T) {
	t.Parallel()
	got := renderMessage([]byte(crlf(attachmentOnly)))
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "report.pdf", got.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", got.Attachments[0].ContentType)
	assert.Equal(t, int64(9), got.Attachments[0].Size)
}

func TestRenderMessageUnparseableHeader(t *testing.T) {
	t.Parallel()
	got := renderMessage([]byte("this is not a header line\r\n<b>x</b>"))
	assert.True(t, got.Degraded)
	assert.Contains(t, got.HTML, "&lt;b&gt;x&lt;/b&gt;")
}

func TestGetMessageBody(t *testing.T) {
	f := startIMAP(t)
	f.addMailbox(t, "Bodies", htmlOnly, plainOnly, attachmentOnly)
	s := acquire(t, f)

	html, err := GetMessageBody(s, "Bodies", 1)
	require.NoError(t, err)
	assert.Equal(t, "Bodies", html.Mailbox)
	assert.Equal(t, uint32(1), html.ID)
	assert.Contains(t, html.HTML, "<b>world</b>")

	plain, err := GetMessageBody(s, "Bodies", 2)
	require.NoError(t, err)
	assert.Contains(t, plain.HTML, "1 &lt; 2")

	att, err := GetMessageBody(s, "Bodies", 3)
	require.NoError(t, err)
	assert.Equal(t, NoReadableContent, att.HTML)

	_, err = GetMessageBody(s, "Bodies", 99)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = GetMessageBody(s, "Elsewhere", 1)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestGetMessageBodyDoesNotMarkSeen(t *testing.T) {
	f := startIMAP(t)
	f.addMailbox(t, "Peek", plainOnly)
	s := acquire(t, f)

	_, err := GetMessageBody(s, "Peek", 1)
	require.NoError(t, err)

	got, err := ListMessages(s, "Peek", ProfileStandard)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Seen)
}
