package bootstrap

import (
	"context"
	"fmt"

	coreconfig "github.com/m3rciful/sessionkeeper/core/config"
	"github.com/m3rciful/sessionkeeper/core/crypto"
	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/store"
)

// Options control the bootstrap pipeline. Nil hooks fall back to the real implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	OpenStore  func(context.Context, coreconfig.StorageConfig) (store.Store, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store  store.Store
	Sealer *crypto.Sealer
}

// Run initializes the logger, derives the session sealer and opens the session store.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	sealer, err := crypto.NewSealer(opts.Config.Crypto.Key)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: crypto init failed: %w", err)
	}

	open := opts.OpenStore
	if open == nil {
		open = store.Open
	}
	st, err := open(ctx, opts.Config.Storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: store initialization failed: %w", err)
	}

	return &Result{Store: st, Sealer: sealer}, nil
}
