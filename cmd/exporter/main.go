package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matze/meater"
)

func main() {

	cfgPath := flag.String("config", "exporter.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := meater.NewDefaultLogger(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub := newPublisher(cfg.MQTT, logger)
	if err := pub.connect(ctx); err != nil {
		logger.Fatalf("failed to connect mqtt broker: %s", err)
	}
	defer pub.close()

	session, err := meater.NewSession(
		meater.WithDeviceName(cfg.Device.Name),
		meater.WithDeviceID(cfg.Device.Addr),
		meater.WithConnectTimeout(cfg.Device.ConnectTimeout),
		meater.WithBackoff(cfg.Device.BackoffBase, cfg.Device.BackoffMax),
		meater.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("failed to initialize session: %s", err)
	}

	go func() {
		for ev := range session.Events() {
			switch ev := ev.(type) {
			case meater.ReadingEvent:
				if err := pub.publishReading(ev.Reading); err != nil {
					logger.Warnf("failed to publish reading: %s", err)
				}
			case meater.DecodeFailedEvent:
				logger.Warnf("failed to decode frame: %s", ev.Err)
			case meater.StateChangeEvent:
				if err := pub.publishState(ev.Status); err != nil {
					logger.Warnf("failed to publish link state: %s", err)
				}
			}
		}
	}()

	if err := session.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("session failed: %s", err)
	}
}
