// Package dkim implements RFC 6376 signing of outbound messages. It signs by
// hand, tag by tag, rather than through a third-party signer, so the exact
// canonicalization and folding behavior this library promises stays under
// direct control.
package dkim

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/idna"

	"github.com/mailit-dev/directmail/internal/canon"
	"github.com/mailit-dev/directmail/internal/fold"
)

// DefaultHeaders is the header-name list signed when a caller does not
// override it. Message-ID, Date, Return-Path, and Bounces-To are
// deliberately left out: they are either mutable in transit or added by
// intermediaries after signing.
const DefaultHeaders = "From:Sender:Reply-To:Subject:To:Cc:MIME-Version:" +
	"Content-Type:Content-Transfer-Encoding:Content-ID:Content-Description:" +
	"Resent-Date:Resent-From:Resent-Sender:Resent-To:Resent-Cc:" +
	"Resent-Message-ID:In-Reply-To:References:List-Id:List-Help:" +
	"List-Unsubscribe:List-Subscribe:List-Post:List-Owner:List-Archive"

// Config names the signing identity: the domain and selector advertised in
// the signature, and the RSA key that produces it.
type Config struct {
	Domain     string
	Selector   string
	PrivateKey *rsa.PrivateKey
	// Headers is the colon-separated list of header names to request for
	// signing. Empty means DefaultHeaders.
	Headers string
}

var errNoBlankLine = errors.New("message has no blank line separating headers from body")

// Sign splits the given RFC 822 message at its header/body boundary, signs
// it per RFC 6376 using relaxed/relaxed canonicalization, and returns the
// complete value of the DKIM-Signature header (folded, without the leading
// "DKIM-Signature: " field name) ready to be prepended to the message.
func Sign(message []byte, cfg Config) (string, error) {
	headers, body, err := splitMessage(message)
	if err != nil {
		return "", err
	}

	requested := cfg.Headers
	if requested == "" {
		requested = DefaultHeaders
	}

	domain, err := toASCIIDomain(cfg.Domain)
	if err != nil {
		return "", fmt.Errorf("converting signing domain to A-label: %w", err)
	}

	bodyHash := sha256.Sum256(canon.RelaxedBody(body))
	bh := base64.StdEncoding.EncodeToString(bodyHash[:])

	canonHeaders, kept := canon.RelaxedHeaders(headers, requested)

	tags := []string{
		"v=1",
		"a=rsa-sha256",
		"c=relaxed/relaxed",
		"d=" + domain,
		"q=dns/txt",
		"s=" + cfg.Selector,
		"bh=" + bh,
		"h=" + kept,
	}
	tagList := strings.Join(tags, "; ")

	header := fold.Fold("DKIM-Signature: "+tagList, 76) + ";\r\n b="

	// Canonicalize this folded header on its own, as a single logical line,
	// before it has a b= value or has been spliced into the real header
	// block. canon.Unfold collapses the folds back to one line the way the
	// relaxed algorithm requires before RelaxedHeaderLine runs on it.
	unsignedLine := canon.Unfold(header)
	_, canonDKIMValue := canon.RelaxedHeaderLine(unsignedLine)

	h := sha256.New()
	h.Write(canonHeaders)
	h.Write([]byte("dkim-signature:" + canonDKIMValue))

	signature, err := rsa.SignPKCS1v15(rand.Reader, cfg.PrivateKey, crypto.SHA256, h.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("signing DKIM hash: %w", err)
	}
	sigB64 := base64.StdEncoding.EncodeToString(signature)

	folded := fold.FoldChunks(sigB64, 73, 75)
	return strings.TrimPrefix(header+folded, "DKIM-Signature: "), nil
}

// splitMessage divides a message into its raw header block and its body, at
// the first blank line.
func splitMessage(message []byte) (headers, body []byte, err error) {
	s := string(message)
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if idx := strings.Index(s, sep); idx >= 0 {
			return []byte(s[:idx]), []byte(s[idx+len(sep):]), nil
		}
	}
	return nil, nil, errNoBlankLine
}

func toASCIIDomain(domain string) (string, error) {
	for _, r := range domain {
		if r > 127 {
			return idna.ToASCII(domain)
		}
	}
	return domain, nil
}
