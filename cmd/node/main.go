package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"raftstore/internal/config"
	"raftstore/internal/node"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line flags override the environment
	nodeID := flag.String("id", cfg.NodeID, "Node ID (will be generated if not provided)")
	dataDir := flag.String("data-dir", cfg.DataDir, "Directory holding the transaction log")
	listen := flag.String("listen", cfg.ListenAddr, "Address to serve on once recovery has completed")
	report := flag.String("metrics-report", "", "Write a JSON metrics report to this file on shutdown")
	flag.Parse()

	cfg.NodeID = *nodeID
	cfg.DataDir = *dataDir
	cfg.ListenAddr = *listen

	n, err := node.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}

	log.Printf("Node ID: %s", n.ID)
	log.Printf("Transaction log: %s", cfg.TxLogPath())

	// Consensus replay must not start before the last applied index is known
	res, err := n.Recover()
	if err != nil {
		log.Printf("Recovery failed: %v", err)
		if err := n.GracefulShutdown(); err != nil {
			log.Printf("Shutdown failed: %v", err)
		}
		os.Exit(1)
	}
	log.Printf("Last applied index: %s", res.Index)

	go func() {
		if err := n.ListenAndServe(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-signalCtx.Done()

	log.Println("Shutting down...")
	if err := n.GracefulShutdown(); err != nil {
		log.Printf("Shutdown failed: %v", err)
	}

	r := n.Metrics().GetReport()
	if *report != "" {
		if err := r.SaveJSON(*report); err != nil {
			log.Printf("Failed to save metrics report: %v", err)
		}
	}
	r.PrintReport()
	log.Println("Node stopped")
}
