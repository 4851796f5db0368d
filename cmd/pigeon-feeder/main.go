// Command pigeon-feeder serves HTTP commands that drive the feeder's flush
// servo, seed servo and water valve through fixed timed actuations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
	"github.com/sweeney/pigeon-feeder/internal/gpio"
	"github.com/sweeney/pigeon-feeder/internal/metrics"
	"github.com/sweeney/pigeon-feeder/internal/mqtt"
	"github.com/sweeney/pigeon-feeder/internal/status"
	"github.com/sweeney/pigeon-feeder/internal/web"
)

type config struct {
	httpAddr    string
	adminAddr   string
	broker      string
	connectWait time.Duration
	heartbeat   time.Duration
	pins        status.Pins
	hold        feeder.Durations
	once        string
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func parseFlags(args []string, out io.Writer) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("pigeon-feeder", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&cfg.httpAddr, "http", ":8080", "HTTP command address")
	fs.StringVar(&cfg.adminAddr, "admin", "", "Admin address for /status and /metrics (empty to disable)")
	fs.StringVar(&cfg.broker, "broker", "", "MQTT broker address, e.g. tcp://192.168.1.200:1883 (empty to disable)")
	fs.DurationVar(&cfg.connectWait, "broker-wait", 30*time.Second, "How long to retry the initial MQTT connection")
	fs.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "MQTT heartbeat interval (0 to disable)")
	fs.IntVar(&cfg.pins.Flush, "pin-flush", gpio.DefaultPinFlush, "BCM pin number for the flush servo")
	fs.IntVar(&cfg.pins.Seeds, "pin-seeds", gpio.DefaultPinSeeds, "BCM pin number for the seed servo")
	fs.IntVar(&cfg.pins.Water, "pin-water", gpio.DefaultPinWater, "BCM pin number for the water valve")
	fs.DurationVar(&cfg.hold.Flush, "flush", feeder.DefaultDurations.Flush, "Flush hold time")
	fs.DurationVar(&cfg.hold.Seeds, "seeds", feeder.DefaultDurations.Seeds, "Seed dispenser hold time")
	fs.DurationVar(&cfg.hold.Water, "water", feeder.DefaultDurations.Water, "Water valve hold time")
	fs.StringVar(&cfg.once, "once", "", "Run a single action (flush, seeds, water) and exit")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %v", fs.Args())
		fmt.Fprintln(out, err)
		return config{}, err
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintln(out, err)
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if err := c.hold.Validate(); err != nil {
		return err
	}
	if c.once != "" {
		if _, err := feeder.ParseAction(c.once); err != nil {
			return fmt.Errorf("-once: %w", err)
		}
	}
	pins := map[int]string{}
	for name, pin := range map[string]int{"flush": c.pins.Flush, "seeds": c.pins.Seeds, "water": c.pins.Water} {
		if pin < 0 {
			return fmt.Errorf("-pin-%s: invalid pin %d", name, pin)
		}
		if other, dup := pins[pin]; dup {
			return fmt.Errorf("-pin-%s: pin %d already used by %s", name, pin, other)
		}
		pins[pin] = name
	}
	if c.heartbeat < 0 {
		return fmt.Errorf("-heartbeat must not be negative")
	}
	if c.connectWait <= 0 {
		return fmt.Errorf("-broker-wait must be positive")
	}
	return nil
}

func run(cfg config) error {
	flush, seeds, water, err := openActuators(cfg.pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	// One-shot mode: no servers, no broker.
	if cfg.once != "" {
		f, err := feeder.New(flush, seeds, water, cfg.hold)
		if err != nil {
			return err
		}
		defer f.Close()
		a, _ := feeder.ParseAction(cfg.once)
		ev, err := f.Run(a)
		if err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
		fmt.Printf("%s (%v)\n", a.Message(), ev.Elapsed.Round(time.Millisecond))
		return nil
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	if cfg.broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.broker, cfg.connectWait)
		if err != nil {
			flush.Close()
			seeds.Close()
			water.Close()
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = rp
	}
	async := mqtt.NewAsync(publisher, 32)
	defer async.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		HTTPAddr:    cfg.httpAddr,
		AdminAddr:   cfg.adminAddr,
		Broker:      cfg.broker,
		HeartbeatMs: cfg.heartbeat.Milliseconds(),
		Pins:        cfg.pins,
		Durations:   cfg.hold,
	})
	m := metrics.New()

	f, err := feeder.New(flush, seeds, water, cfg.hold, tracker, m, publishObserver{async})
	if err != nil {
		return err
	}
	// Runs after the servers are down: waits out any hold, then releases pins.
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("release gpio: %v", err)
		}
	}()

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(async.IsConnected())
	startup := mqtt.SystemEvent{
		Timestamp:  time.Now(),
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", ""),
	}
	if err := async.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	srvErr := make(chan error, 2)

	srv := web.New(cfg.httpAddr, f)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	defer shutdown("http", srv.Shutdown, longestHold(cfg.hold))
	log.Printf("http command server listening on %s", cfg.httpAddr)

	if cfg.adminAddr != "" {
		admin := web.NewAdmin(cfg.adminAddr, tracker, m.Handler())
		go func() {
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				srvErr <- fmt.Errorf("admin server: %w", err)
			}
		}()
		defer shutdown("admin", admin.Shutdown, time.Second)
		log.Printf("admin server listening on %s", cfg.adminAddr)
	}

	log.Printf("started: pins flush=%d seeds=%d water=%d hold flush=%v seeds=%v water=%v broker=%q",
		cfg.pins.Flush, cfg.pins.Seeds, cfg.pins.Water, cfg.hold.Flush, cfg.hold.Seeds, cfg.hold.Water, cfg.broker)

	var tick <-chan time.Time
	if cfg.heartbeat > 0 {
		ticker := time.NewTicker(cfg.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(async, async, tracker, time.Now, tick, sigCh, srvErr)
}

// openActuators acquires all three pin bindings, releasing any already
// opened if a later one fails.
func openActuators(pins status.Pins) (gpio.Servo, gpio.Servo, gpio.Valve, error) {
	flush, err := gpio.NewRealServo(pins.Flush)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("flush servo: %w", err)
	}
	seeds, err := gpio.NewRealServo(pins.Seeds)
	if err != nil {
		flush.Close()
		return nil, nil, nil, fmt.Errorf("seeds servo: %w", err)
	}
	water, err := gpio.NewRealValve(pins.Water)
	if err != nil {
		flush.Close()
		seeds.Close()
		return nil, nil, nil, fmt.Errorf("water valve: %w", err)
	}
	return flush, seeds, water, nil
}

// runLoop publishes heartbeats until a signal arrives or a server fails.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, srvErr <-chan error) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason := signalName(s)
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case err := <-srvErr:
			return err

		case <-tick:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v busy=%q", snap.Uptime().Truncate(time.Second), snap.Busy)
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// publishObserver forwards finished actuations to MQTT.
type publishObserver struct {
	p mqtt.Publisher
}

func (publishObserver) Begin(feeder.Action) {}

func (o publishObserver) Record(ev feeder.Event) {
	if err := o.p.Publish(ev); err != nil {
		log.Printf("publish error: %v", err)
	}
}

// shutdown stops a server, giving in-flight requests up to grace to finish.
func shutdown(name string, fn func(context.Context) error, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace+time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("%s shutdown: %v", name, err)
	}
}

func longestHold(d feeder.Durations) time.Duration {
	return max(d.Flush, d.Seeds, d.Water)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
