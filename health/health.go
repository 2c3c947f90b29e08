package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Checker func(ctx context.Context) error

type Result struct {
	Status string            `json:"status"` // "ok" or "fail"
	Checks map[string]string `json:"checks"`
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{
			Status: "ok",
			Checks: map[string]string{"process": "ok"},
		})
	}
}

func ReadinessHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		res := Result{Status: "ok", Checks: map[string]string{}}
		for name, fn := range checks {
			if err := fn(ctx); err != nil {
				res.Checks[name] = "fail: " + err.Error()
				res.Status = "fail"
			} else {
				res.Checks[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if res.Status == "ok" {
			w.WriteHeader(http.StatusOK)
		} else {
			// If any dependency fails, readiness should be non-200 so the
			// load balancer stops routing logins here.
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(res)
	}
}

// DBCheck reports whether the properties/state database answers a ping.
func DBCheck(db *sql.DB) Checker {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("db not configured")
		}
		return db.PingContext(ctx)
	}
}

// EndpointCheck reports whether an IdP endpoint is reachable at all. Any
// HTTP status counts as reachable; only transport failures fail the check.
func EndpointCheck(client *http.Client, url string) Checker {
	return func(ctx context.Context) error {
		if url == "" {
			return errors.New("endpoint not configured")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}
