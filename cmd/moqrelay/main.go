// Command moqrelay runs a standalone MoQ relay: a WebTransport server
// that accepts sessions at /moq and lets them publish and subscribe to
// broadcasts through a shared in-process registry.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/moqlite/certs"
	"github.com/zsiec/moqlite/origin"
	"github.com/zsiec/moqlite/session"
	"github.com/zsiec/moqlite/wire"
)

var buildVersion = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}
	slog.Info("certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	addr := envOr("MOQ_ADDR", ":4443")
	registry := origin.NewRegistry(nil)

	relay := &relayServer{registry: registry}

	mux := http.NewServeMux()
	mux.HandleFunc("/moq", relay.handleMoQ)

	wtSrv := &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			Handler:   mux,
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert.TLSCert}},
			QUICConfig: &quic.Config{
				MaxIdleTimeout: 30 * time.Second,
			},
		},
		CheckOrigin: func(_ *http.Request) bool { return true },
	}
	relay.wtSrv = wtSrv

	slog.Info("moqrelay starting", "version", buildVersion, "addr", addr, "cert_hash", cert.FingerprintBase64())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := wtSrv.ListenAndServe()
		if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		return wtSrv.Close()
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// relayServer accepts WebTransport sessions and drives one MoQ Session
// per connection against a shared registry.
type relayServer struct {
	wtSrv    *webtransport.Server
	registry *origin.Registry
}

func (r *relayServer) handleMoQ(w http.ResponseWriter, req *http.Request) {
	wtSession, err := r.wtSrv.Upgrade(w, req)
	if err != nil {
		slog.Error("webtransport upgrade failed", "error", err)
		return
	}

	id := fmt.Sprintf("moq-%s", req.RemoteAddr)
	log := slog.With("session", id)
	log.Info("session connected")

	sess := session.NewSession(session.Config{
		Transport: session.NewWebTransportAdapter(wtSession),
		IsClient:  false,
		Versions:  []uint64{wire.Version},
		Registry:  r.registry,
		Log:       log,
	})

	if err := sess.Run(wtSession.Context()); err != nil {
		log.Debug("session ended", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
