package session

import (
	"net/url"
	"strings"
)

const cookiePrefix = "lila2="

// ParseSessionID extracts the Play framework sessionId from a raw HTTP
// Cookie header, bit for bit matching the reference implementation's
// on_open: split on ';', find the entry named "lila2", skip past its
// signature prefix up to (and including) the first '-' — if there is no
// '-' the whole value is treated as unsigned and used as-is — then
// form-decode the remainder and read out "sessionId".
func ParseSessionID(cookieHeader string) (string, bool) {
	var raw string
	found := false
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, cookiePrefix) {
			raw = strings.TrimPrefix(part, cookiePrefix)
			found = true
			break
		}
	}
	if !found {
		return "", false
	}

	idx := 0
	if dash := strings.IndexByte(raw, '-'); dash >= 0 {
		idx = dash + 1
	}
	if idx > len(raw) {
		return "", false
	}

	values, err := url.ParseQuery(raw[idx:])
	if err != nil {
		return "", false
	}
	sessionID := values.Get("sessionId")
	if sessionID == "" {
		return "", false
	}
	return sessionID, true
}
