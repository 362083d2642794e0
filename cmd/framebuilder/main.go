// Command framebuilder runs the frame-builder aggregation engine as a
// standalone daemon: it loads configuration, starts the dispatcher and
// its shard workers, and brings up whichever operational surfaces
// (HTTP, gRPC, audit trail, alerter) the configuration enables.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/jlab-daq/e2sar-framebuilder/internal/alert"
	"github.com/jlab-daq/e2sar-framebuilder/internal/audit"
	"github.com/jlab-daq/e2sar-framebuilder/internal/config"
	"github.com/jlab-daq/e2sar-framebuilder/internal/dispatcher"
	"github.com/jlab-daq/e2sar-framebuilder/internal/httpapi"
	"github.com/jlab-daq/e2sar-framebuilder/internal/sink"
	"github.com/jlab-daq/e2sar-framebuilder/internal/statsrpc"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	d, err := dispatcher.New(*cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var trail *audit.Trail
	if cfg.ClickHouse.Enabled() {
		trail, err = audit.NewTrail(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to initialize audit trail: %v", err)
		}
		d.SetAuditTrail(trail)
	}

	var ring sink.RingConn
	if cfg.Ring.Enabled() {
		ring = sink.NewNatsRingConn(cfg.Ring.Path)
	}

	if err := d.Start(ring); err != nil {
		log.Fatalf("Failed to start dispatcher: %v", err)
	}
	log.Printf("framebuilder: started with %d shards", d.ShardCount())

	var httpSrv *httpapi.Server
	if cfg.HTTP.Enabled() {
		httpErrs := make(chan error, 1)
		httpSrv = httpapi.New(cfg.HTTP.ListenAddr, d)
		httpSrv.Start(httpErrs)
		log.Printf("framebuilder: HTTP control surface on %s", cfg.HTTP.ListenAddr)
		go func() {
			if err := <-httpErrs; err != nil {
				log.Printf("framebuilder: HTTP server error: %v", err)
			}
		}()
	}

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled() {
		lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", cfg.GRPC.ListenAddr, err)
		}
		grpcServer = grpc.NewServer()
		statsrpc.Register(grpcServer, d)
		go func() {
			log.Printf("framebuilder: gRPC stats surface on %s", cfg.GRPC.ListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Printf("framebuilder: gRPC server error: %v", err)
			}
		}()
	}

	var alerter *alert.Alerter
	if cfg.Alert.Enabled {
		notifier := alert.NewEmailNotifier(cfg.SMTP)
		alerter, err = alert.New(cfg.Alert, d, notifier)
		if err != nil {
			log.Fatalf("Failed to initialize alerter: %v", err)
		}
		go alerter.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("framebuilder: shutdown signal received, cleaning up...")

	if alerter != nil {
		alerter.Stop()
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpapi.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Printf("framebuilder: HTTP server shutdown error: %v", err)
		}
	}

	d.Shutdown()

	if trail != nil {
		if err := trail.Close(); err != nil {
			log.Printf("framebuilder: error closing audit trail: %v", err)
		}
	}

	log.Println("framebuilder: exited")
}
