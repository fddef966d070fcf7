package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessagePlain(t *testing.T) {
	raw := crlf(`From: Supervision Onduleur <Onduleur@SDIS.example>
To: cta@sdis.example
Subject: Alerte Onduleur
Date: Mon, 06 Jan 2025 08:15:00 +0100
Message-ID: <abc123@ups.sdis.example>
Content-Type: text/plain; charset=utf-8

Message : Passage sur batterie
Evenement : Coupure secteur
`)

	email, err := ParseMessage(7, raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), email.SeqNum)
	assert.Equal(t, "abc123@ups.sdis.example", email.MessageID)
	assert.False(t, email.Synthesized)
	assert.Equal(t, "onduleur@sdis.example", email.From)
	assert.Equal(t, "Alerte Onduleur", email.Subject)
	assert.Contains(t, email.Text, "Passage sur batterie")
	assert.True(t, email.Date.Equal(time.Date(2025, 1, 6, 7, 15, 0, 0, time.UTC)))
}

func TestParseMessageSynthesizesMissingID(t *testing.T) {
	raw := crlf(`From: inpt@sdis.example
Subject: Fin d'incident
Content-Type: text/plain

Operation n° 42 terminee
`)

	email, err := ParseMessage(12, raw)
	require.NoError(t, err)

	assert.Equal(t, "seqno-12", email.MessageID)
	assert.True(t, email.Synthesized)
	assert.True(t, email.Date.IsZero())
}

func TestParseMessageMultipartPrefersPlainText(t *testing.T) {
	raw := crlf(`From: inpt@sdis.example
Subject: =?UTF-8?Q?Op=C3=A9ration_programm=C3=A9e?=
Message-ID: <op-1@inpt>
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

Version texte
--b1
Content-Type: text/html; charset=utf-8

<p>Version <b>HTML</b></p>
--b1--
`)

	email, err := ParseMessage(1, raw)
	require.NoError(t, err)

	assert.Equal(t, "Opération programmée", email.Subject)
	assert.Equal(t, "Version texte", strings.TrimSpace(email.Text))
}

func TestParseMessageHTMLOnly(t *testing.T) {
	raw := crlf(`From: inpt@sdis.example
Subject: Debut d'incident
Message-ID: <inc-1@inpt>
Content-Type: text/html; charset=utf-8

<div>Site&nbsp;: Mont Aigoual</div><br>Fin&amp;suite
`)

	email, err := ParseMessage(3, raw)
	require.NoError(t, err)

	assert.Equal(t, "Site : Mont Aigoual\n\nFin&suite", email.Text)
}

func TestParseMessageLatin1(t *testing.T) {
	raw := append(crlf(`From: onduleur@sdis.example
Subject: Alerte Onduleur
Message-ID: <latin@ups>
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: 8bit

`), []byte("Ev\xe9nement : Batterie faible\r\n")...)

	email, err := ParseMessage(4, raw)
	require.NoError(t, err)

	assert.Contains(t, email.Text, "Evénement : Batterie faible")
}

func TestParseMessageMalformedHeader(t *testing.T) {
	raw := []byte("this is not a header line\r\n\r\nbody\r\n")

	_, err := ParseMessage(9, raw)
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "<p>a</p><p>b</p>", want: "a\nb"},
		{in: "x &lt; y &amp;&amp; z", want: "x < y && z"},
		{in: "<p>1</p>\n\n\n\n<p>2</p>", want: "1\n\n2"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stripHTML(tc.in), "input %q", tc.in)
	}
}
