package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ZUXXSU/chathubserver/internal/app"
	"github.com/ZUXXSU/chathubserver/internal/config"
	"go.uber.org/fx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "", "http service address (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Port = *addr
	}

	fx.New(app.Module(cfg)).Run()
	return nil
}
