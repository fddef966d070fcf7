package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/sdis/opsdash/internal/model"
)

// ParseMessage parses a raw RFC 5322 message fetched under seqNum.
// The text/plain part is preferred; HTML-only messages are reduced to
// plain text. A message without a Message-ID header gets a synthesized id.
func ParseMessage(seqNum uint32, raw []byte) (model.Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return model.Email{}, fmt.Errorf("parsing message %d: %w", seqNum, err)
	}
	if mr == nil {
		return model.Email{}, fmt.Errorf("parsing message %d: %w", seqNum, err)
	}
	defer mr.Close()

	email := model.Email{SeqNum: seqNum}

	if subject, err := mr.Header.Subject(); err == nil {
		email.Subject = strings.TrimSpace(subject)
	} else {
		email.Subject = strings.TrimSpace(mr.Header.Get("Subject"))
	}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.From = strings.ToLower(from[0].Address)
	} else {
		email.From = strings.TrimSpace(mr.Header.Get("From"))
	}

	if date, err := mr.Header.Date(); err == nil {
		email.Date = date
	}

	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		email.MessageID = id
	} else {
		email.MessageID = model.SynthesizedID(seqNum)
		email.Synthesized = true
	}

	textBody, htmlBody, err := readBodies(mr)
	if err != nil {
		return model.Email{}, fmt.Errorf("reading body of message %d: %w", seqNum, err)
	}

	email.Text = textBody
	if email.Text == "" && htmlBody != "" {
		email.Text = stripHTML(htmlBody)
	}

	return email, nil
}

// readBodies returns the first text/plain and text/html inline parts.
// Attachments are skipped.
func readBodies(mr *mail.Reader) (textBody, htmlBody string, err error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			if textBody != "" || htmlBody != "" {
				break
			}
			return "", "", err
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		case contentType == "" && textBody == "":
			textBody = string(body)
		}
	}

	return textBody, htmlBody, nil
}
