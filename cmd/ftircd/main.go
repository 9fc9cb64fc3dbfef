// Command ftircd runs an RFC 1459-style IRC server.
//
// Usage: ftircd <port> <password>
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Godot04/ft-irc/internal/config"
	"github.com/Godot04/ft-irc/internal/ircd"
	"github.com/Godot04/ft-irc/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Printf("fatal: %s", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run() error {
	port, password, err := parseArgs(os.Args[1:])
	if err != nil {
		printUsage()
		return err
	}

	tunables, err := config.Load()
	if err != nil {
		return err
	}

	collector := metrics.New()
	go func() {
		if err := metrics.Serve(tunables.MetricsAddr); err != nil {
			log.Printf("metrics server stopped: %s", err)
		}
	}()

	manager := ircd.NewManager(password, tunables.IdleTimeout, tunables.PingInterval, collector)
	go manager.Run()

	listener := ircd.NewListener(fmt.Sprintf(":%d", port), manager, tunables.PingInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("received shutdown signal")
		listener.Shutdown()
	}()

	return listener.Run()
}

func parseArgs(args []string) (port int, password string, err error) {
	if len(args) != 2 {
		return 0, "", fmt.Errorf("expected exactly 2 arguments, got %d", len(args))
	}

	port, err = strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		return 0, "", fmt.Errorf("invalid port %q: must be an integer in 1..65535", args[0])
	}

	password = args[1]
	if password == "" {
		return 0, "", fmt.Errorf("password must not be empty")
	}

	return port, password, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <port> <password>\n", os.Args[0])
}
