package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sso-portal/oauth2"
)

// ---------- Session (JWT in HTTP-only cookie) ----------

const sessionCookie = "ssoportal_session"

// sessionKey is derived from SESSION_SECRET at startup; see main.
var sessionKey []byte

type sessionClaims struct {
	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

func cookieSettings() (http.SameSite, bool) {
	sameSite := sessionSameSite
	secure := forceSecureCookie || strings.HasPrefix(strings.ToLower(appBaseURL), "https://")
	if sameSite == http.SameSiteNoneMode && !secure {
		sameSite = http.SameSiteLaxMode
	}
	return sameSite, secure
}

func setSessionCookie(w http.ResponseWriter, identity oauth2.Identity) error {
	now := time.Now()

	claims := sessionClaims{
		Username: identity.Username,
		Groups:   identity.Groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sso-portal",
			Subject:   identity.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sessionKey)
	if err != nil {
		return err
	}

	sameSite, secure := cookieSettings()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: sameSite,
		Secure:   secure,
	})
	return nil
}

func readSession(r *http.Request) (*sessionClaims, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, err
	}
	claims := &sessionClaims{}
	tok, err := jwt.ParseWithClaims(c.Value, claims,
		func(t *jwt.Token) (interface{}, error) { return sessionKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Username == "" {
		return nil, errors.New("invalid session")
	}
	return claims, nil
}

func expireSessionCookie(w http.ResponseWriter) {
	sameSite, secure := cookieSettings()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: sameSite,
		Secure:   secure,
	})
}
