// Package bounce classifies SMTP failures and delivery status notifications
// into hard/soft/complaint outcomes, beyond the permanent/transient split
// mailerr exposes. A caller deciding whether to retry a send later wants
// more than "5xx or 4xx". A 552 quota failure should be retried, even
// though RFC 5321 puts it in the 5xx range.
package bounce

import (
	"bufio"
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"strconv"
	"strings"
)

// Type classifies why a message bounced.
type Type string

const (
	Hard      Type = "hard"      // permanent, the address should be suppressed
	Soft      Type = "soft"      // temporary, safe to retry later
	Complaint Type = "complaint" // spam/abuse complaint from the recipient
)

// Info holds the classification of one bounced recipient.
type Info struct {
	Type      Type
	Code      int
	Message   string
	Recipient string
	Permanent bool
}

// Classify analyzes an SMTP reply code and message, refining the bare
// permanent/transient split with known enhanced-status-code exceptions
// (e.g. a 552 mailbox-full failure is a soft bounce despite its 5xx class).
func Classify(code int, msg string) Info {
	info := Info{Code: code, Message: msg}
	lower := strings.ToLower(msg)

	if containsAny(lower, "spam", "unsolicited", "abuse", "complaint", "blocked for spam") {
		info.Type = Complaint
		info.Permanent = true
		return info
	}

	switch {
	case code >= 500 && code < 600:
		info.Type = Hard
		info.Permanent = true
		if code == 552 && containsAny(lower, "quota", "mailbox full", "over quota", "storage") {
			info.Type = Soft
			info.Permanent = false
		}
	case code >= 400 && code < 500:
		info.Type = Soft
		info.Permanent = false
	default:
		info.Type = Soft
		info.Permanent = false
	}

	return info
}

// ClassifyDSN parses an RFC 3464 delivery status notification
// (multipart/report; report-type=delivery-status) and extracts the bounce
// classification for the failed recipient.
func ClassifyDSN(rawMessage []byte) (*Info, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(rawMessage))
	if err != nil {
		return nil, fmt.Errorf("parsing DSN message: %w", err)
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		return nil, fmt.Errorf("missing Content-Type header")
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parsing Content-Type: %w", err)
	}
	if mediaType != "multipart/report" {
		return nil, fmt.Errorf("unexpected Content-Type %q, expected multipart/report", mediaType)
	}
	if rt := params["report-type"]; rt != "" && rt != "delivery-status" {
		return nil, fmt.Errorf("unexpected report-type %q, expected delivery-status", rt)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("missing boundary in Content-Type")
	}

	reader := multipart.NewReader(msg.Body, boundary)

	var info Info
	found := false
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		partMedia, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if partMedia == "message/delivery-status" {
			if err := parseDSNStatus(part, &info); err != nil {
				return nil, fmt.Errorf("parsing delivery-status: %w", err)
			}
			found = true
		}
		_ = part.Close()
	}
	if !found {
		return nil, fmt.Errorf("no message/delivery-status part found in DSN")
	}

	return &info, nil
}

func parseDSNStatus(part *multipart.Part, info *Info) error {
	scanner := bufio.NewScanner(part)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(strings.ToLower(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])

		switch key {
		case "status":
			parseStatusCode(value, info)
		case "final-recipient":
			info.Recipient = afterSemicolon(value)
		case "original-recipient":
			if info.Recipient == "" {
				info.Recipient = afterSemicolon(value)
			}
		case "diagnostic-code":
			info.Message = value
			parseDiagnosticCode(value, info)
		case "action":
			switch strings.ToLower(value) {
			case "failed":
				info.Permanent = true
				info.Type = Hard
			case "delayed", "relayed", "expanded":
				info.Permanent = false
				info.Type = Soft
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading delivery-status: %w", err)
	}
	if info.Type == "" {
		info.Type = Soft
	}
	return nil
}

func afterSemicolon(value string) string {
	if idx := strings.Index(value, ";"); idx >= 0 {
		return strings.TrimSpace(value[idx+1:])
	}
	return value
}

// parseStatusCode interprets an enhanced status code (class.subject.detail,
// e.g. "5.1.1") from a DSN Status field.
func parseStatusCode(status string, info *Info) {
	parts := strings.SplitN(status, ".", 3)
	if len(parts) < 1 {
		return
	}
	class, err := strconv.Atoi(parts[0])
	if err != nil {
		return
	}

	switch class {
	case 5:
		info.Type = Hard
		info.Permanent = true
		info.Code = 550
		if len(parts) >= 3 {
			subject, _ := strconv.Atoi(parts[1])
			detail, _ := strconv.Atoi(parts[2])
			if subject == 2 && detail == 2 {
				info.Type = Soft
				info.Permanent = false
				info.Code = 552
			}
		}
	case 4:
		info.Type = Soft
		info.Permanent = false
		info.Code = 450
	case 2:
		info.Type = ""
		info.Permanent = false
		info.Code = 250
	}
}

// parseDiagnosticCode extracts a leading SMTP reply code from a
// diagnostic-code field, e.g. "smtp; 550 5.1.1 User unknown".
func parseDiagnosticCode(diagnostic string, info *Info) {
	diagnostic = afterSemicolon(diagnostic)
	if len(diagnostic) < 3 {
		return
	}
	code, err := strconv.Atoi(diagnostic[:3])
	if err != nil || code < 200 || code >= 600 {
		return
	}
	info.Code = code
	reclassified := Classify(code, info.Message)
	info.Type = reclassified.Type
	info.Permanent = reclassified.Permanent
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
