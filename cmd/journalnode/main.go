// Command journalnode is a demonstration process wiring together the
// journal facade, a proactor pool, the incoming migration coordinator,
// and an HTTP server exposing Prometheus metrics and a health check.
//
// It accepts plain TCP connections on -migration-addr; any connection is
// wrapped as a migration.Socket and handed to the coordinator as one
// source-shard flow, shard index round-robinned across the configured
// shard count. This lets the scenarios in the package tests be exercised
// end to end with a single binary and `nc` or a small Go client, without
// depending on a real command engine.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rohan-flutterint/dragonfly/config"
	"github.com/rohan-flutterint/dragonfly/journal"
	"github.com/rohan-flutterint/dragonfly/journalmetrics"
	"github.com/rohan-flutterint/dragonfly/migration"
	"github.com/rohan-flutterint/dragonfly/natsconsumer"
	"github.com/rohan-flutterint/dragonfly/proactor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
)

var migrationAddr = flag.String("migration-addr", ":7711", "TCP address the incoming migration coordinator listens on")

func main() {
	flag.Parse()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		log.Warn().Err(err).Msg("journalnode: failed to set GOMAXPROCS")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("journalnode: invalid configuration")
	}

	pool := proactor.NewPool(cfg.NumShards)
	defer pool.StopAll()

	facade := journal.NewFacade(pool)
	metrics := journalmetrics.New()
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	var natsHandle *natsConn
	if cfg.NatsURL != "" {
		nc, err := natsconsumer.Dial(cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("journalnode: NATS tee disabled, dial failed")
		} else {
			natsHandle = &natsConn{conn: nc}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	for shard := 0; shard < cfg.NumShards; shard++ {
		shard := shard
		if err := pool.Await(ctx, shard, func() {
			s := facade.StartInThread(shard, cfg.RingBufferMaxEntries, cfg.RingBufferMaxBytes)
			s.RegisterOnChange(journalmetrics.NewJournalObserver(metrics, shard))
			if natsHandle != nil {
				subject := natsconsumer.SubjectForThread(cfg.NatsSubjectPrefix, shard)
				s.RegisterOnChange(natsconsumer.NewTee(natsHandle.conn, subject))
			}
		}); err != nil {
			log.Fatal().Err(err).Int("shard", shard).Msg("journalnode: failed to start shard slice")
		}
	}
	cancel()

	executor := migration.NewMapExecutor()
	coordinator := migration.NewCoordinator(pool, executor, cfg.MigrationFinalizationTimeout)
	coordinator.Init(cfg.NumShards)
	coordinator.SetReplayRate(cfg.MigrationReplayRatePerSec)
	log.Info().Str("session", coordinator.SessionID()).Msg("journalnode: migration coordinator ready")

	listener, err := net.Listen("tcp", *migrationAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *migrationAddr).Msg("journalnode: failed to listen for migration connections")
	}
	log.Info().Str("addr", *migrationAddr).Msg("journalnode: accepting migration connections")

	go acceptMigrationConns(listener, pool, coordinator, cfg.NumShards)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("journalnode: metrics server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("journalnode: shutting down")
	_ = listener.Close()
	coordinator.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = facade.Close(shutdownCtx)
	if natsHandle != nil {
		natsHandle.conn.Close()
	}
}

// natsConn keeps the *nats.Conn behind a tiny wrapper so main.go doesn't
// need to import nats.go directly just to spell out its type.
type natsConn struct {
	conn interface {
		Publish(subj string, data []byte) error
		Close()
	}
}

func acceptMigrationConns(listener net.Listener, pool *proactor.Pool, coordinator *migration.Coordinator, numShards int) {
	next := 0
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Info().Err(err).Msg("journalnode: migration listener stopped accepting")
			return
		}
		shard := next % numShards
		next++
		sock := migration.NewNetConnSocket(conn, shard)
		coordinator.StartFlow(shard, sock)
		log.Info().Int("shard", shard).Str("remote", conn.RemoteAddr().String()).Msg("journalnode: migration flow started")
	}
}
