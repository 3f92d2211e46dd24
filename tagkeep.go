package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tagkeep/console"
	"tagkeep/coordinator"
	"tagkeep/httpapi"
	"tagkeep/indicator"
	"tagkeep/label"
	"tagkeep/mqtt"
	"tagkeep/reader"
	"tagkeep/registry"
	"tagkeep/store"
)

var myBuild string

const pingInterval = 120 * time.Second

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	flash     store.Flash
	registry  *registry.Registry
	reader    reader.Reader
	indicator indicator.Indicator
	feedback  *indicator.Feedback
	mqtt      *mqtt.Client
	printer   *label.Printer
	engine    *coordinator.Engine
	http      *httpapi.Server
	console   *console.Console
	engineWG  sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func main() {
	SetVersionInfo(myBuild)
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}

// runDaemon starts every configured component and blocks until SIGINT or
// SIGTERM.
func runDaemon(cfgfile string) error {
	fmt.Printf("tagkeep build %s\n", myBuild)

	cfg, err := LoadConfig(cfgfile)
	if err != nil {
		return err
	}

	app, err := newApp(cfg, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	app.start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-app.ctx.Done():
	}

	fmt.Println("Shutting down...")
	app.stop()
	fmt.Println("Shutdown complete")
	return nil
}

// newApp opens the hardware and wires the engine to its front-ends. On
// error anything already opened is released.
func newApp(cfg *Config, in io.Reader, out io.Writer) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{cfg: cfg, ctx: ctx, cancel: cancel}
	if err := app.init(in, out); err != nil {
		app.release()
		return nil, err
	}
	return app, nil
}

func (app *App) init(in io.Reader, out io.Writer) error {
	cfg := app.cfg
	var err error

	// Registry and its flash sector
	app.flash, err = store.OpenFlash(cfg.Flash)
	if err != nil {
		return fmt.Errorf("open flash: %w", err)
	}
	st, err := store.New(app.flash, cfg.Flash.Offset, registry.DefaultCapacity)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	app.registry = registry.New(registry.DefaultCapacity, st)
	if err := st.LoadInto(app.registry); err != nil {
		// a blank or damaged sector starts an empty registry
		log.Printf("Load registry: %v", err)
	}
	log.Printf("Registry loaded: %d/%d items", app.registry.Count(), app.registry.Capacity())

	// Initialize tag reader
	app.reader, err = reader.New(cfg.Reader)
	if err != nil {
		return fmt.Errorf("init reader: %w", err)
	}

	// Initialize indicator (LEDs, neopixels, screen)
	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		return fmt.Errorf("init indicator: %w", err)
	}
	app.feedback = indicator.NewFeedback(app.indicator, cfg.Indicator.Hold)

	// Initialize MQTT
	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.feedback.Connected,
		OnDisconnect: app.feedback.Disconnected,
	})
	if err != nil {
		return fmt.Errorf("init MQTT: %w", err)
	}

	app.printer, err = label.New(cfg.Label)
	if err != nil {
		return fmt.Errorf("init label printer: %w", err)
	}

	coord := coordinator.New(app.registry, app.reader, cfg.Acquisition)
	app.engine = coordinator.NewEngine(coord, app.feedback, app.mqtt, coordinator.Handlers{
		OnFinish: func(ev coordinator.Event) { log.Printf("Acquisition: %v", ev) },
		OnDelete: func(e registry.Entry) { log.Printf("Deleted %s from slot %d", e.ID, e.Slot) },
	})
	if app.printer != nil {
		app.engine.Subscribe(app.printer)
	}

	// Front-ends
	if !cfg.Console.Disabled {
		app.console, err = console.New(cfg.Console, app.engine, in, out)
		if err != nil {
			return fmt.Errorf("init console: %w", err)
		}
		app.engine.Subscribe(app.console)
	}
	app.http = httpapi.New(cfg.HTTP, app.engine)

	return nil
}

// start launches the engine and front-ends in the background.
func (app *App) start() {
	app.engineWG.Add(1)
	go func() {
		defer app.engineWG.Done()
		if err := app.engine.Run(app.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Engine stopped: %v", err)
		}
	}()

	go func() {
		if err := app.mqtt.Connect(); err != nil {
			log.Printf("MQTT connect: %v", err)
		}
	}()
	go app.pingSender()

	app.http.Start()

	if app.console != nil {
		go func() {
			err := app.console.Run(app.ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Console: %v", err)
			}
		}()
	}
}

// stop shuts the front-ends down before the hardware they drive.
func (app *App) stop() {
	if err := app.http.Shutdown(); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	app.cancel()
	app.engineWG.Wait()
	app.mqtt.Disconnect()
	app.release()
}

func (app *App) release() {
	app.cancel()
	if app.console != nil {
		if err := app.console.Close(); err != nil {
			log.Printf("Console close: %v", err)
		}
	}
	if app.printer != nil {
		app.printer.Close()
	}
	if app.feedback != nil {
		app.feedback.Shutdown()
	}
	if app.indicator != nil {
		if err := app.indicator.Release(); err != nil {
			log.Printf("Indicator release: %v", err)
		}
	}
	if app.reader != nil {
		if err := app.reader.Close(); err != nil {
			log.Printf("Reader close: %v", err)
		}
	}
	if c, ok := app.flash.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("Flash close: %v", err)
		}
	}
}

func (app *App) pingSender() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			st, err := app.engine.Status(app.ctx)
			if err != nil {
				continue
			}
			app.mqtt.Ping(st.Total)
		}
	}
}
