// Command lockey-node boots one node of a LocKey cluster: a replicated
// membership registry (internal/membership), a reservation manager
// (internal/reservation) backed by a node directory (internal/nodedir),
// and the HTTP reservation API (internal/api) callers talk to.
//
// Adapted from the teacher's cmd/main.go + internal/node/node.go, which
// built exactly one SimpleLockService and started exactly one HTTP
// listener with no flags, no cluster, and no graceful-shutdown signal
// handling beyond node.go's gracefulShutdown. This version takes its
// node ID, listen addresses and Raft join target from flags (the
// teacher's node.go even TODO-commented "should be obtained from the
// config file" for its hardcoded IP/port) and carries the same
// gracefulShutdown shape forward for the reservation API's HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/SystemBuilders/LocKey/internal/api"
	"github.com/SystemBuilders/LocKey/internal/membership"
	"github.com/SystemBuilders/LocKey/internal/nodedir"
	"github.com/SystemBuilders/LocKey/internal/reservation"
	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

func main() {
	var (
		nodeID       = flag.Uint("node-id", 1, "this node's rsrvid.NodeID")
		apiAddr      = flag.String("api-addr", "127.0.0.1:61111", "address the reservation HTTP API listens on")
		raftAddr     = flag.String("raft-addr", "127.0.0.1:7000", "address Raft uses to talk to its peers")
		raftDir      = flag.String("raft-dir", "", "directory for Raft's log/snapshot store (defaults to a temp dir)")
		joinAddr     = flag.String("join", "", "existing cluster member's Raft address to join, empty to bootstrap")
		enableSingle = flag.Bool("bootstrap", false, "bootstrap a new single-node cluster")
	)
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("node_id", fmt.Sprint(*nodeID)).Logger()

	if *raftDir == "" {
		dir, err := os.MkdirTemp("", "lockey-raft-")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create raft directory")
		}
		*raftDir = dir
	}
	if err := os.MkdirAll(*raftDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create raft directory")
	}

	id := rsrvid.NodeID(*nodeID)

	// The reservation layer's transport is deliberately out of scope
	// (SPEC_FULL.md, carried over from spec.md §1): nodedir.Network only
	// routes messages between nodes registered in this same process, so
	// this binary always runs a single-node reservation manager. The
	// membership Raft group is real and multi-process even so, ready
	// for a future transport to dial the addresses it replicates.
	net := nodedir.NewNetwork()
	dir := net.Register(id, nil)
	mgr := reservation.NewManager(dir, log)

	store := membership.New(false, log)
	store.RaftDir = *raftDir
	store.RaftAddr = *raftAddr
	if err := store.Open(*enableSingle, fmt.Sprint(*nodeID)); err != nil {
		log.Fatal().Err(err).Msg("failed to open raft store")
	}
	if err := store.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start membership listener")
	}
	defer store.Close()

	if *joinAddr != "" {
		if err := store.Join(*joinAddr, fmt.Sprint(*nodeID)); err != nil {
			log.Fatal().Err(err).Msg("failed to join cluster")
		}
	}

	srv := api.NewServer(mgr, log)
	router := srv.SetupRouting(mux.NewRouter())

	server := &http.Server{
		Addr:    *apiAddr,
		Handler: router,
	}

	go gracefulShutdown(server, log)

	log.Info().Str("addr", *apiAddr).Str("raft_dir", filepath.Clean(*raftDir)).Msg("starting reservation API")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("reservation API stopped")
	}
}

func gracefulShutdown(server *http.Server, log zerolog.Logger) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
