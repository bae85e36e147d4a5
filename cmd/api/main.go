package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crewbase.org/internal/auth"
	"crewbase.org/internal/auth/pg"
	"crewbase.org/internal/httpapi"
	"crewbase.org/internal/notify"
	"crewbase.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()

	dsn := os.Getenv("CREWBASE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing CREWBASE_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	secret := os.Getenv("CREWBASE_COOKIE_SECRET")
	if secret == "" {
		log.Fatal("missing CREWBASE_COOKIE_SECRET")
	}
	baseURL := os.Getenv("CREWBASE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	opts := []auth.Option{
		auth.WithCookieSecret(secret),
		auth.WithBaseURL(baseURL),
	}
	if name := os.Getenv("CREWBASE_PRODUCT_NAME"); name != "" {
		opts = append(opts, auth.WithProductName(name))
	}
	// Without a mail provider codes land in the structured log, which is
	// what local development wants anyway.
	if os.Getenv("CREWBASE_NOTIFY") == "log" {
		opts = append(opts, auth.WithNotifier(notify.LogNotifier{}))
	}

	svc, err := auth.NewService(store, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	secureCookies := strings.HasPrefix(baseURL, "https://")
	api := httpapi.New(svc, httpapi.ReadyProbe{DB: store.DB()}, version, secureCookies)

	handler := httpapi.RequestID(httpapi.SecurityHeaders(httpapi.CORS(
		httpapi.MaxBodyBytes(httpapi.RateLimit(httpapi.LoggingJSON(api.Handler()), 20, 10), 1<<20),
	)))

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting crewbase-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
