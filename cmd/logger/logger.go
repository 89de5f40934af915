package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matze/meater"
)

type config struct {
	name    string
	addr    string
	timeout time.Duration
	debug   bool
}

func main() {

	// Parse command line options
	var cfg config
	flag.StringVar(&cfg.name, "name", "MEATER", "name of remote peripheral")
	flag.StringVar(&cfg.addr, "addr", "", "address of remote peripheral (MAC on Linux, UUID on OS X)")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "timeout for a single connect attempt")
	flag.BoolVar(&cfg.debug, "debug", false, "enable debug logging")
	flag.Parse()

	logger := meater.NewDefaultLogger(cfg.debug)

	session, err := meater.NewSession(
		meater.WithDeviceName(cfg.name),
		meater.WithDeviceID(cfg.addr),
		meater.WithConnectTimeout(cfg.timeout),
		meater.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("failed to initialize session: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for ev := range session.Events() {
			switch ev := ev.(type) {
			case meater.ReadingEvent:
				logger.Infof("got data: %s", &ev.Reading)
			case meater.DecodeFailedEvent:
				logger.Warnf("failed to decode frame: %s", ev.Err)
			case meater.StateChangeEvent:
				logger.Infof("state change: %s", ev.Status)
			}
		}
	}()

	if err := session.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("session failed: %s", err)
	}
}
