// dp2p-engine - Peer-to-peer ERC20 escrow engine
package main

import (
	"context"
	"os"

	"github.com/jpgonzalezra/dp2p-engine/internal/config"
	"github.com/jpgonzalezra/dp2p-engine/internal/logging"
	"github.com/jpgonzalezra/dp2p-engine/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting dp2p-engine",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"instance", cfg.InstanceAddress,
		"platform_fee_bps", cfg.PlatformFeeBPS,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
