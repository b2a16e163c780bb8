package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/homewatch/internal/config"
	"github.com/hamed0406/homewatch/internal/httpapi"
	"github.com/hamed0406/homewatch/internal/logging"
	"github.com/hamed0406/homewatch/internal/probe"
	"github.com/hamed0406/homewatch/internal/repo/memory"
	"github.com/hamed0406/homewatch/internal/scheduler"
	"github.com/hamed0406/homewatch/internal/snapshot"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.FromEnv()
	targetsPath := flag.String("config", cfg.TargetsFile, "devices/domains file (.json, .yaml or .toml)")
	port := flag.Int("port", 0, "listen port on all interfaces (overrides API_ADDR/PORT)")
	flag.Parse()
	if *port > 0 {
		cfg.Addr = config.ListenAddr(*port)
	}

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	reg, err := config.LoadTargets(*targetsPath)
	if err != nil {
		logger.Fatal("targets_load_error", zap.String("path", *targetsPath), zap.Error(err))
	}
	logger.Info("targets_loaded",
		zap.String("path", *targetsPath),
		zap.Int("devices", len(reg.Devices)),
		zap.Int("domains", len(reg.Domains)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := memory.New(reg)
	mon := scheduler.NewMonitor(logger, store,
		probe.NewICMPProbe(cfg.ICMPPrivileged),
		probe.NewHTTPChecker(probe.HTTPTimeout),
		reg,
	)
	mon.DNS = probe.NewDNSChecker()
	if err := mon.Start(ctx); err != nil {
		logger.Fatal("monitor_start_error", zap.Error(err))
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("api_listen_error", zap.String("addr", cfg.Addr), zap.Error(err))
	}

	api := httpapi.NewServer(logger, snapshot.New(store, reg))
	srv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api_serve_error", zap.Error(err))
	}
	stop()
	mon.Wait()
	logger.Info("shutdown_complete")
}
