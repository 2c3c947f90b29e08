package main

import (
	"encoding/json"
	"net/http"

	"sso-portal/groups"
	"sso-portal/oauth2"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleLogin starts a fresh attempt by bouncing the browser to the IdP.
func handleLogin(w http.ResponseWriter, r *http.Request) {
	loginURL, err := authFlow.LoginURL(r.Context())
	if err != nil {
		Errorf("login: %v", err)
		http.Error(w, "Login is not available", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// handleCallback is the redirect target registered with the IdP. A failed
// attempt never surfaces an error page; the user is sent back to the IdP
// login and the cause lands in the logs.
func handleCallback(w http.ResponseWriter, r *http.Request) {
	outcome, err := authFlow.Authenticate(r.Context(), oauth2.RequestFromQuery(r.URL.Query()))
	if err != nil {
		// Only configuration errors escape Authenticate.
		Errorf("callback: %v", err)
		http.Error(w, "Login is not available", http.StatusInternalServerError)
		return
	}

	if !outcome.Authenticated() {
		http.Redirect(w, r, outcome.LoginURL, http.StatusFound)
		return
	}

	identity := *outcome.Identity
	identity.Groups = resolveGroups(r, identity)

	if err := setSessionCookie(w, identity); err != nil {
		Errorf("callback: session cookie for %q: %v", identity.Username, err)
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	Infof("login: %q authenticated (%d groups)", identity.Username, len(identity.Groups))
	http.Redirect(w, r, "/home", http.StatusFound)
}

// resolveGroups merges directory groups into the claim groups when an LDAP
// resolver is configured. Directory trouble never fails a login.
func resolveGroups(r *http.Request, identity oauth2.Identity) []string {
	if groupResolver == nil {
		return identity.Groups
	}
	directory, err := groupResolver.Groups(r.Context(), identity.Username)
	if err != nil {
		Warnf("groups: directory lookup for %q failed, using claim groups only: %v",
			identity.Username, err)
		return identity.Groups
	}
	return groups.Merge(identity.Groups, directory)
}

// handleHome shows the signed-in identity, or kicks off a login.
func handleHome(w http.ResponseWriter, r *http.Request) {
	session, err := readSession(r)
	if err != nil {
		handleLogin(w, r)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"username": session.Username,
		"groups":   session.Groups,
	})
}

// handleLogout drops the local session. IdP-side logout is out of scope.
func handleLogout(w http.ResponseWriter, r *http.Request) {
	expireSessionCookie(w)
	http.Redirect(w, r, "/home", http.StatusFound)
}
