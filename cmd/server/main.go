// Command server runs the gophbucket provisioning API.
package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/gophbucket/internal/logging"
	"github.com/dmitrijs2005/gophbucket/internal/server"
	"github.com/dmitrijs2005/gophbucket/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(cfg)
	if err != nil {
		logging.New(cfg.LogFormat, cfg.LogLevel).Error(ctx, "startup failed", "error", err.Error())
		os.Exit(1)
	}

	app.Run(ctx)
}
