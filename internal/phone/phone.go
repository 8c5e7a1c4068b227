// Package phone normalizes the phone numbers and mention tokens that the
// gateway embeds in JIDs and message bodies.
package phone

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const phoneJIDSuffix = "@s.whatsapp.net"

var mentionPattern = regexp.MustCompile(`@(\d{5,15})`)

// Normalize parses a raw phone number (digits, with or without a leading +)
// into E.164 form. Numbers that cannot be parsed are rejected.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty phone number")
	}
	if !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}

	parsed, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number %q: %w", raw, err)
	}
	if !phonenumbers.IsPossibleNumber(parsed) {
		return "", fmt.Errorf("impossible phone number: %q", raw)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// FromJID extracts and normalizes the phone number of a phone-linked JID
// such as "15551234567@s.whatsapp.net".
func FromJID(jid string) (string, error) {
	if !strings.HasSuffix(jid, phoneJIDSuffix) {
		return "", fmt.Errorf("not a phone-linked jid: %q", jid)
	}
	return Normalize(strings.TrimSuffix(jid, phoneJIDSuffix))
}

// IsPhoneJID reports whether the identifier is a phone-linked JID.
func IsPhoneJID(id string) bool {
	return strings.HasSuffix(id, phoneJIDSuffix)
}

// JID renders the phone-linked JID of an E.164 number, the form the gateway
// expects in mentions arrays.
func JID(e164 string) string {
	return strings.TrimPrefix(e164, "+") + phoneJIDSuffix
}

// MentionToken renders the in-body mention form of an E.164 number,
// e.g. "+1 555 123 4567" -> "@15551234567".
func MentionToken(e164 string) string {
	return "@" + strings.TrimPrefix(e164, "+")
}

// MentionedNumbers extracts the E.164 phone numbers mentioned in a message
// body via @-digit tokens. Tokens that do not parse are skipped.
func MentionedNumbers(text string) []string {
	var numbers []string
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		number, err := Normalize(match[1])
		if err != nil {
			continue
		}
		numbers = append(numbers, number)
	}
	return numbers
}
