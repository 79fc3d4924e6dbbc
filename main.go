package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/patrikhermansson/dynbench/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main installs a console logger on stderr (the level is set from
// DYNBENCH_LOG by the core package), starts a goroutine that exits on an
// interrupt signal and executes the root command.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	// A run has no cancellation points, so an interrupt ends the process.
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	go listenForInterrupt(stopChan)

	cmd.Execute()
}

// listenForInterrupt exits the program when a signal arrives on stopChan.
func listenForInterrupt(stopChan chan os.Signal) {
	<-stopChan
	log.Fatal().Msg("Interrupt signal received. Exiting...")
}
