// Server runs the operator HTTP API and the gRPC health endpoint.
// QUEUE_DIR, RESULTS_DIR and STATUS_FILE are shared with the privileged worker; LDAP_URL and ADMIN_GROUP are required.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mfa-orphans/internal/action/queue"
	"mfa-orphans/internal/action/result"
	"mfa-orphans/internal/api"
	"mfa-orphans/internal/config"
	apphealth "mfa-orphans/internal/health"
	identitydomain "mfa-orphans/internal/identity/domain"
	"mfa-orphans/internal/policy/engine"
	"mfa-orphans/internal/telemetry"
	telemetryotel "mfa-orphans/internal/telemetry/otel"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.LDAPURL == "" {
		log.Fatal("server: LDAP_URL is required; without the directory every subject looks orphaned")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewActionMetrics(providers.MeterProvider.Meter(telemetry.Source))
	if err != nil {
		log.Printf("telemetry: action metrics disabled: %v", err)
	}
	events, closeEvents := openEvents(cfg, providers)

	blobs, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	queueDepth := func(ctx context.Context) (int64, error) {
		names, err := blobs.queue.List(ctx)
		return int64(len(names)), err
	}
	if err := telemetry.RegisterQueueDepth(providers.MeterProvider.Meter(telemetry.Source), queueDepth); err != nil {
		log.Printf("telemetry: queue depth gauge disabled: %v", err)
	}
	statusReader, err := openStatus(cfg)
	if err != nil {
		log.Fatalf("status: %v", err)
	}

	dir := openDirectory(cfg)
	gate, err := engine.NewAdminGate(ctx, dir, cfg.AdminGroup)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	auditing, err := openAudit(ctx, cfg)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	writer := queue.NewWriter(blobs.queue, blobs.results, gate,
		queue.WithAudit(auditing.logger),
		queue.WithEvents(events),
		queue.WithMetrics(metrics),
	)
	mail, alert := openSinks(cfg)
	results := result.NewGate(result.Config{
		Results:              blobs.results,
		Queue:                blobs.queue,
		Emails:               dir,
		Mail:                 mail,
		Alert:                alert,
		LegacySuccessKeyword: cfg.LegacySuccessKeyword,
		Audit:                auditing.logger,
		Events:               events,
		Metrics:              metrics,
	})

	tokens, err := openTokens(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	proxies, err := api.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("config: TRUSTED_PROXIES: %v", err)
	}

	healthSrv := health.NewServer()
	checker := apphealth.NewChecker(healthSrv)
	checker.AddPolicy("admin_gate", gate)
	checker.AddPinger("status_snapshot", statusReader)
	if auditing.db != nil {
		checker.AddPinger("audit_db", auditing.db)
	}
	if blobs.redis != nil {
		checker.AddPinger("redis", blobs.redis)
	}
	checker.CheckOnce(ctx)
	go checker.Run(ctx, healthInterval)

	handler := &api.Handler{
		Queue:      writer,
		Results:    results,
		Snapshots:  statusReader,
		Identities: dir,
		Audit:      auditing.logger,
		Policy:     identitydomain.MatchPolicy{MatchEmail: cfg.MatchEmail},
	}
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(handler, api.RouterConfig{
			Tokens:         tokens,
			CORSOrigins:    cfg.CORSAllowedOrigins,
			TrustedProxies: proxies,
			Readiness:      checker,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcSrv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	go func() {
		log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	if !telemetry.Drain(drainCtx) {
		log.Println("telemetry: shutdown with action events still in flight")
	}
	cancelDrain()
	closeEvents()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	auditing.close()
	blobs.close()
	log.Println("server stopped")
}
