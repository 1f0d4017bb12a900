package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

const stateCookieName = "oauth_state"

// signState binds the random state parameter to this relay instance so the
// callback can reject states it never issued. The cookie carries
// "<state>.<hex hmac>"; the query parameter carries the bare state.
func signState(secret []byte, state string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(state))
	return state + "." + hex.EncodeToString(mac.Sum(nil))
}

// verifyState checks the signed cookie value against the state echoed back by
// the provider. It returns false for a malformed cookie, a bad signature, or a
// state mismatch.
func verifyState(secret []byte, cookieValue, state string) bool {
	got, sig, ok := strings.Cut(cookieValue, ".")
	if !ok || got == "" || got != state {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(got))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}

func setStateCookie(w http.ResponseWriter, value string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/callback",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/callback",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
