package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"sso-portal/configstore"
	"sso-portal/groups"
	"sso-portal/health"
	"sso-portal/oauth2"
	"sso-portal/statestore"
)

var (
	appBaseURL    = envOr("APP_BASE_URL", "http://localhost:8089")
	listenAddr    = envOr("LISTEN_ADDR", ":8089")
	sessionSecret = []byte(envOr("SESSION_SECRET", "dev-insecure-change-me"))

	sessionSameSite   = parseSameSite(os.Getenv("SESSION_SAMESITE"), http.SameSiteLaxMode)
	sessionTTL        = parseDurationOr(os.Getenv("SESSION_TTL"), 24*time.Hour)
	forceSecureCookie = os.Getenv("FORCE_SECURE_COOKIE") == "1"

	// Wired in main; used by the handlers.
	authFlow      oauth2.Service
	groupResolver groups.Resolver
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func parseSameSite(raw string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return def
	}
}

func parseDurationOr(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Invalid duration %q; using %s", raw, def)
		return def
	}
	return d
}

// envProperties assembles an oauth2 properties map from the environment,
// for deployments that run without a config database. OAUTH2_CLIENT_ID
// maps to oauth2-client-id and so on.
func envProperties() map[string]string {
	names := []string{
		oauth2.PropAuthorizationEndpoint,
		oauth2.PropTokenEndpoint,
		oauth2.PropUserInfoEndpoint,
		oauth2.PropRedirectURI,
		oauth2.PropClientID,
		oauth2.PropClientSecret,
		oauth2.PropIssuer,
		oauth2.PropUsernameClaimType,
		oauth2.PropGroupsClaimType,
		oauth2.PropScope,
		oauth2.PropMaxStateValidity,
		oauth2.PropAllowedClockSkew,
	}
	props := make(map[string]string, len(names))
	for _, name := range names {
		envName := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
			props[name] = v
		}
	}
	return props
}

func ldapConfigFromEnv() *groups.LDAPConfig {
	host := strings.TrimSpace(os.Getenv("LDAP_HOST"))
	if host == "" {
		return nil
	}
	return &groups.LDAPConfig{
		Host:         host,
		StartTLS:     envOr("LDAP_STARTTLS", "") == "1",
		BindDN:       os.Getenv("LDAP_BIND_DN"),
		BindPassword: os.Getenv("LDAP_BIND_PASSWORD"),
		UserBaseDN:   os.Getenv("LDAP_USER_BASE_DN"),
		UserAttr:     os.Getenv("LDAP_USER_ATTR"),
		GroupBaseDN:  os.Getenv("LDAP_GROUP_BASE_DN"),
		GroupAttr:    os.Getenv("LDAP_GROUP_ATTR"),
		MemberAttr:   os.Getenv("LDAP_MEMBER_ATTR"),
	}
}

func main() {
	ctx := context.Background()

	// ---- Configuration: DB-backed properties when DATABASE_URL is set,
	// plain environment otherwise ----
	props := envProperties()
	var db *sql.DB
	var usedStates statestore.Store

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("DB open error: %v", err)
		}
		if err = db.Ping(); err != nil {
			log.Fatalf("DB ping error: %v", err)
		}

		if err := configstore.CreateSchema(ctx, db); err != nil {
			log.Fatalf("Schema error: %v", err)
		}
		store, err := configstore.New(db, configstore.Options{Defaults: props})
		if err != nil {
			log.Fatalf("Config store init error: %v", err)
		}
		props = store.Snapshot()
		Infof("config store loaded %d properties", len(props))

		pg := statestore.PostgresStore{DB: db}
		if err := pg.CreateSchema(ctx); err != nil {
			log.Fatalf("Schema error: %v", err)
		}
		usedStates = pg
	} else {
		usedStates = statestore.NewMemoryStore()
	}

	cfg, err := oauth2.FromProperties(props)
	if err != nil {
		log.Fatalf("OAuth2 config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("OAuth2 config error: %v", err)
	}

	// ---- Flow engine ----
	codec, err := oauth2.NewStateCodec(sessionSecret, cfg.AllowedClockSkew)
	if err != nil {
		log.Fatalf("State codec init error: %v", err)
	}
	sessionKey, err = oauth2.DeriveKey(sessionSecret, "session-cookie")
	if err != nil {
		log.Fatalf("Session key init error: %v", err)
	}

	oauth2.Debugf = Debugf
	oauth2.Warnf = Warnf

	authFlow = oauth2.Service{
		Config: cfg,
		States: codec,
		Used:   usedStates,
	}

	// ---- Optional directory groups ----
	if ldapCfg := ldapConfigFromEnv(); ldapCfg != nil {
		resolver, err := groups.NewLDAPResolver(*ldapCfg)
		if err != nil {
			log.Fatalf("LDAP resolver error: %v", err)
		}
		groupResolver = resolver
		Infof("directory group lookup enabled against %s", ldapCfg.Host)
	}

	// ---- Router ----
	r := mux.NewRouter()

	loginLimiter := newIPRateLimiter(rate.Every(6*time.Second), 5, 15*time.Minute)
	auth := r.PathPrefix("/auth").Subrouter()
	auth.Handle("/login", rateLimitMiddleware(loginLimiter, http.HandlerFunc(handleLogin))).Methods("GET")
	auth.Handle("/callback", rateLimitMiddleware(loginLimiter, http.HandlerFunc(handleCallback))).Methods("GET")

	r.HandleFunc("/home", handleHome).Methods("GET")
	r.HandleFunc("/logout", handleLogout).Methods("GET", "POST")
	r.HandleFunc("/", handleHome).Methods("GET")

	readyChecks := map[string]health.Checker{
		"idp-authorization": health.EndpointCheck(http.DefaultClient, cfg.AuthorizationEndpoint),
	}
	if db != nil {
		readyChecks["db"] = health.DBCheck(db)
	}
	r.HandleFunc("/healthz", health.LivenessHandler()).Methods("GET")
	r.HandleFunc("/readyz", health.ReadinessHandler(readyChecks)).Methods("GET")

	handler := withRequestLogging(r)

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	Infof("sso-portal listening on %s (base URL %s)", listenAddr, appBaseURL)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
