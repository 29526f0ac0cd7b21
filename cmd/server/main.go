package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"ledgerlens/internal/app"
	"ledgerlens/internal/infrastructure"
	"ledgerlens/pkg/contracts"
)

func main() {
	configPath := flag.String("config", "", "config file (defaults to ledgerlens.yaml, config.yaml or configs/config.yaml)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	application, err := app.NewApplication(*configPath)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = application.Run()
	_ = infrastructure.CloseLogFile()
	if err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
