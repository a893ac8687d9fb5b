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

	"shadowrelay/config"
	"shadowrelay/connlog"
	"shadowrelay/protocol"
	"shadowrelay/relay"
	"shadowrelay/reporter"
	"shadowrelay/streamcipher"
)

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
	if !cfg.Mode.Tunnel {
		log.Fatalf("config: mode.tunnel must be true for ss-tunnel")
	}

	log.Infof("Starting ss-tunnel v%s", Version)
	log.Infof("  Listen: %s", cfg.Network.ListenAddr)
	log.Infof("  Remote: %s", cfg.Network.RemoteAddr)
	log.Infof("  Destination: %s", cfg.Network.TunnelDest)
	log.Infof("  Cipher: %s", cfg.Crypto.Cipher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	dest, err := parseTunnelDest(cfg.Network.TunnelDest)
	if err != nil {
		log.Fatalf("config: invalid tunnel_dest: %v", err)
	}

	desc := streamcipher.Resolve(cfg.Crypto.Cipher)
	masterKey := streamcipher.DeriveKey(cfg.Crypto.Password, desc.KeyLen)

	rep, err := reporter.Dial(cfg.Manager.Addr)
	if err != nil {
		log.Warnf("reporter: %v", err)
	}
	defer rep.Close()

	connLog := connlog.NewWriter(cfg.Logs.Path, cfg.Logs.RetentionDays)
	defer connLog.Close()

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

	tun := relay.NewTunnel(desc, masterKey, cfg.Crypto.OneTimeAuth, cfg.Network.RemoteAddr, dest, rep, connLog, cfg.Network.IdleTimeout)

	ln, err := net.Listen("tcp", cfg.Network.ListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Network.ListenAddr, err)
	}

	log.Infof("ss-tunnel listening on %s", cfg.Network.ListenAddr)
	if err := tun.Serve(ctx, ln); err != nil {
		log.Fatalf("relay tunnel error: %v", err)
	}
}

// parseTunnelDest turns "host:port" config into the Destination the
// tunnel prepends to every connection; IP literals become IPv4/IPv6,
// everything else is carried as a Domain header for the remote server
// to resolve.
func parseTunnelDest(addr string) (protocol.Destination, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return protocol.Destination{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return protocol.Destination{}, err
	}

	dest := protocol.Destination{Port: uint16(port)}
	if ip := net.ParseIP(host); ip != nil {
		dest.IP = ip
	} else {
		dest.Domain = host
	}
	return dest, nil
}
