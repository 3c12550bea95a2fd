// Package health reports readiness over the standard gRPC health protocol and as JSON over HTTP.
package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is a dependency that can be pinged (e.g. *sql.DB, the status snapshot reader).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is a policy engine with a self-check (e.g. the admin-protection gate).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkTimeout bounds a single dependency check.
const checkTimeout = 3 * time.Second

// Checker runs named checks and publishes their status to a grpc health.Server. The overall
// service ("") is SERVING only when every check passes; each check is also published under its name.
type Checker struct {
	srv *health.Server

	mu     sync.Mutex
	names  []string
	checks map[string]func(context.Context) error
	last   map[string]error
}

// NewChecker returns a Checker publishing to srv. srv may be nil when only HTTP readiness is needed.
func NewChecker(srv *health.Server) *Checker {
	return &Checker{srv: srv, checks: map[string]func(context.Context) error{}, last: map[string]error{}}
}

// AddPinger registers p under name. A nil p is skipped.
func (c *Checker) AddPinger(name string, p Pinger) {
	if p == nil {
		return
	}
	c.add(name, p.PingContext)
}

// AddPolicy registers pc under name. A nil pc is skipped.
func (c *Checker) AddPolicy(name string, pc PolicyChecker) {
	if pc == nil {
		return
	}
	c.add(name, pc.HealthCheck)
}

func (c *Checker) add(name string, fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
	}
	c.checks[name] = fn
}

// CheckOnce runs every check and publishes the result. Returns true if all passed.
func (c *Checker) CheckOnce(ctx context.Context) bool {
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	checks := make(map[string]func(context.Context) error, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.Unlock()

	results := make(map[string]error, len(names))
	ok := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checks[name](cctx)
		cancel()
		results[name] = err
		if err != nil {
			ok = false
		}
	}

	c.mu.Lock()
	for name, err := range results {
		prev, seen := c.last[name]
		if err != nil && (!seen || prev == nil) {
			log.Printf("health: %s not ready: %v", name, err)
		}
		if err == nil && seen && prev != nil {
			log.Printf("health: %s recovered", name)
		}
		c.last[name] = err
	}
	c.mu.Unlock()

	if c.srv != nil {
		for name, err := range results {
			c.srv.SetServingStatus(name, servingStatus(err == nil))
		}
		c.srv.SetServingStatus("", servingStatus(ok))
	}
	return ok
}

// Run re-checks every interval until ctx is done, then marks everything NOT_SERVING.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.CheckOnce(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if c.srv != nil {
				c.srv.Shutdown()
			}
			return
		case <-t.C:
			c.CheckOnce(ctx)
		}
	}
}

// Report is the JSON readiness document.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ServeHTTP runs the checks and writes a Report: 200 when ready, 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ok := c.CheckOnce(r.Context())
	rep := Report{Status: "ok", Checks: map[string]string{}}
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	sort.Strings(names)
	for _, name := range names {
		if err := c.last[name]; err != nil {
			rep.Checks[name] = err.Error()
		} else {
			rep.Checks[name] = "ok"
		}
	}
	c.mu.Unlock()
	status := http.StatusOK
	if !ok {
		rep.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
