// Package email normalizes caller-supplied email addresses.
package email

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalid = errors.New("invalid email address")

// Normalize validates a bare address and lowercases its domain. Display
// names ("Jane <j@x.io>") are rejected.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return "", ErrInvalid
	}
	at := strings.LastIndexByte(addr, '@')
	return addr[:at] + "@" + strings.ToLower(addr[at+1:]), nil
}

// Domain returns the lowercased part after the last '@', or "".
func Domain(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}
