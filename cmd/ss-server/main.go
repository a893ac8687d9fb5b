package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"shadowrelay/acl"
	"shadowrelay/config"
	"shadowrelay/connlog"
	"shadowrelay/relay"
	"shadowrelay/reporter"
	"shadowrelay/resolver"
	"shadowrelay/rlimit"
	"shadowrelay/statusapi"
	"shadowrelay/streamcipher"
)

// Version info - increment based on change magnitude:
// Major (x.0.0): Breaking changes, wire-format changes
// Minor (0.y.0): New cipher support, significant enhancements
// Patch (0.0.z): Bug fixes, minor improvements
var Version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := rlimit.Raise(cfg.Limits.NoFile); err != nil {
		log.Warnf("rlimit: %v", err)
	}

	log.Infof("Starting ss-server v%s", Version)
	log.Infof("  Listen: %s", cfg.Network.ListenAddr)
	log.Infof("  Cipher: %s", cfg.Crypto.Cipher)
	log.Infof("  One-time auth: %v", cfg.Crypto.OneTimeAuth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	desc := streamcipher.Resolve(cfg.Crypto.Cipher)
	masterKey := streamcipher.DeriveKey(cfg.Crypto.Password, desc.KeyLen)

	var aclImpl acl.ACL = acl.AllowAll{}
	if cfg.ACL.Path != "" {
		fa, err := acl.LoadFile(cfg.ACL.Path)
		if err != nil {
			log.Fatalf("Failed to load ACL: %v", err)
		}
		if err := fa.Watch(ctx); err != nil {
			log.Warnf("acl: watch failed, running without hot reload: %v", err)
		}
		aclImpl = fa
	}

	rep, err := reporter.Dial(cfg.Manager.Addr)
	if err != nil {
		log.Warnf("reporter: %v", err)
	}
	defer rep.Close()

	connLog := connlog.NewWriter(cfg.Logs.Path, cfg.Logs.RetentionDays)
	defer connLog.Close()

	stats := &statusapi.Stats{}

	srv := relay.NewServer(desc, masterKey, cfg.Crypto.OneTimeAuth, aclImpl, resolver.NewDefault(), rep, connLog, stats, cfg.Network.IdleTimeout)

	ln, err := net.Listen("tcp", cfg.Network.ListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Network.ListenAddr, err)
	}

	api := statusapi.New(statusAPIPort(cfg.Network.ListenAddr), "server", cfg.Crypto.Cipher, stats)
	go func() {
		if err := api.Run(ctx); err != nil {
			log.Warnf("statusapi: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				connLog.Cleanup()
			}
		}
	}()

	log.Infof("ss-server listening on %s", cfg.Network.ListenAddr)
	if err := srv.Serve(ctx, ln); err != nil {
		log.Fatalf("relay server error: %v", err)
	}
}

// statusAPIPort derives the status API's port from the relay's listen
// port plus 1001 (9389 for the default :8388, and 9389 as well when
// listen_addr has no parseable port), so a single listen_addr config key
// covers both without requiring a second port assignment for the common
// single-instance deployment.
func statusAPIPort(listenAddr string) int {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return 9389
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 9389
	}
	return port + 1001
}
