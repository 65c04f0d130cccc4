// Command sessionkeeper runs the Telegram login bot.
package main

import (
	"context"
	"log"
	"os"

	"github.com/m3rciful/sessionkeeper/core/bootstrap"
	"github.com/m3rciful/sessionkeeper/core/cmd"
	"github.com/m3rciful/sessionkeeper/core/config"
	"github.com/m3rciful/sessionkeeper/internal/app"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(ctx context.Context, cc cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			cfg := cc.CoreConfig()
			res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
			if err != nil {
				return nil, err
			}
			a, err := app.New(app.Deps{Config: cfg, Store: res.Store, Sealer: res.Sealer})
			if err != nil {
				_ = res.Store.Close()
				return nil, err
			}
			return a, nil
		},
	})
	if err != nil {
		log.Printf("sessionkeeper: %v", err)
		os.Exit(1)
	}
}
