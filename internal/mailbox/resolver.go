package mailbox

import (
	"fmt"
	"strings"
)

// IMAP endpoints for common providers, used when no server is
// configured explicitly.
var knownServers = map[string]string{
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"live.com":       "outlook.office365.com:993",
	"yahoo.com":      "imap.mail.yahoo.com:993",
	"icloud.com":     "imap.mail.me.com:993",
	"me.com":         "imap.mail.me.com:993",
	"aol.com":        "imap.aol.com:993",
	"zoho.com":       "imap.zoho.com:993",
	"fastmail.com":   "imap.fastmail.com:993",
	"gmx.com":        "imap.gmx.com:993",
	"web.de":         "imap.web.de:993",
}

// ResolveServer guesses the IMAP endpoint for an email address:
// known-provider table first, then the conventional imap.<domain>:993.
func ResolveServer(address string) (string, error) {
	_, domain, ok := strings.Cut(address, "@")
	if !ok || domain == "" {
		return "", fmt.Errorf("invalid email address %q", address)
	}
	domain = strings.ToLower(domain)

	if server, ok := knownServers[domain]; ok {
		return server, nil
	}
	return "imap." + domain + ":993", nil
}
