package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/httpapi"
	"parishdesk.org/internal/obs"
	"parishdesk.org/internal/rbac"
	"parishdesk.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("PARISHDESK_COMMIT"))

	// Audit archive (optional): without a DSN the trail is in-memory only.
	var (
		auditOpts []audit.Option
		archive   *pg.Store
	)
	if dsn := os.Getenv("PARISHDESK_PG_DSN"); dsn != "" {
		var err error
		archive, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open audit archive: %v", err)
		}
		auditOpts = append(auditOpts, audit.WithArchiver(archive))
	}
	auditLog := audit.NewLog(auditOpts...)
	svc := rbac.New(auditLog)

	// Bootstrap grant so a fresh deployment has one administrator.
	if adminID := os.Getenv("PARISHDESK_BOOTSTRAP_ADMIN"); adminID != "" {
		bootstrapAdmin(svc, adminID)
	}

	rp := httpapi.ReadyProbe{}
	if archive != nil {
		rp.DB = archive.DB()
	}
	api := httpapi.New(svc, rp, version)

	handler := api.Handler()
	if os.Getenv("PARISHDESK_RATE_LIMIT") != "off" {
		handler = httpapi.RateLimit(handler, 50, 25)
	}

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// gRPC health endpoint for platform probes.
	grpcSrv, healthLoop := httpapi.NewGRPCServer(rp)
	go func() {
		lis, err := net.Listen("tcp", ":9090")
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		if err := grpcSrv.Serve(lis); err != nil {
			log.Printf("grpc serve: %v", err)
		}
	}()
	go healthLoop(ctx)

	// Retire expired assignments on a fixed cadence.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := svc.SweepExpired(ctx); n > 0 {
					log.Printf("retired %d expired assignments", n)
				}
			}
		}
	}()

	log.Printf("Starting parishdesk-access %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if archive != nil {
		_ = archive.Close()
	}
	log.Println("Stopped")
}

func bootstrapAdmin(svc *rbac.Service, adminID string) {
	for _, role := range svc.ListRoles(false) {
		if role.Name != "System Administrator" {
			continue
		}
		if _, err := svc.Assign(context.Background(), adminID, role.ID, "bootstrap", nil, nil); err != nil {
			log.Printf("bootstrap admin grant: %v", err)
		}
		return
	}
}
