package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/KatanaPush/internal/config"
	"github.com/cjeanneret/KatanaPush/internal/debug"
	"github.com/cjeanneret/KatanaPush/internal/httpc"
	"github.com/cjeanneret/KatanaPush/internal/hw/camera"
	"github.com/cjeanneret/KatanaPush/internal/hw/gpio"
	"github.com/cjeanneret/KatanaPush/internal/logic/capture"
	"github.com/cjeanneret/KatanaPush/internal/upload"
	"github.com/cjeanneret/KatanaPush/internal/web"
)

const (
	appName = "katanapush"
	appDesc = "periodic camera capture and upload"

	// stopGrace bounds how long shutdown waits for the cycle in flight.
	stopGrace = 30 * time.Second
)

// cliOverrides holds values given on the command line or in the environment.
// Zero values (and -1 for the debug level) mean "use the config file".
type cliOverrides struct {
	BaseURL    string
	IntervalMs int
	DebugLevel int
}

type options struct {
	configPath string
	webPort    int
	once       bool
	autostart  bool
	overrides  cliOverrides
}

func main() {
	app := cli.App(appName, appDesc)

	cfgPath := app.String(cli.StringOpt{
		Name:   "c config",
		Desc:   "path to config file",
		EnvVar: "KATANAPUSH_CONFIG",
		Value:  filepath.Join("configs", "default.yaml"),
	})
	webPort := app.Int(cli.IntOpt{
		Name:   "web",
		Desc:   "web control port, 0 runs headless",
		EnvVar: "KATANAPUSH_WEB_PORT",
		Value:  8080,
	})
	baseURL := app.String(cli.StringOpt{
		Name:   "url",
		Desc:   "upload server base URL (overrides server.base_url)",
		EnvVar: "KATANAPUSH_URL",
	})
	intervalMs := app.Int(cli.IntOpt{
		Name:   "interval-ms",
		Desc:   "wait between cycles in ms (overrides capture.interval_ms)",
		EnvVar: "KATANAPUSH_INTERVAL_MS",
	})
	debugLevel := app.Int(cli.IntOpt{
		Name:   "d debug",
		Desc:   "debug level 0-4 (overrides defaults.debug_level)",
		EnvVar: "KATANAPUSH_DEBUG",
		Value:  -1,
	})
	once := app.Bool(cli.BoolOpt{
		Name: "once",
		Desc: "run a single capture-upload cycle and exit",
	})
	autostart := app.Bool(cli.BoolOpt{
		Name:   "start",
		Desc:   "start the loop at launch (always on when headless)",
		EnvVar: "KATANAPUSH_AUTOSTART",
	})

	app.Action = func() {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err := run(ctx, options{
			configPath: *cfgPath,
			webPort:    *webPort,
			once:       *once,
			autostart:  *autostart,
			overrides: cliOverrides{
				BaseURL:    *baseURL,
				IntervalMs: *intervalMs,
				DebugLevel: *debugLevel,
			},
		})
		if err != nil {
			log.WithError(err).Fatal("stopped")
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("failed to execute application")
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := validateCLIOverrides(opts.overrides); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}
	applyOverrides(cfg, opts.overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config after overrides: %w", err)
	}
	if opts.webPort < 0 || opts.webPort > 65535 {
		return fmt.Errorf("web port must be 0-65535, got %d", opts.webPort)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.Value("Debug level", debug.Level())

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO || cfg.Capture.Type != config.CameraGPIOTrigger)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Warn(err, "closing GPIO driver failed")
		}
	}()

	debug.Step(2, "Initializing camera")
	cam, err := newCameraFromConfig(gpioDriver, cfg)
	if err != nil {
		return fmt.Errorf("init camera: %w", err)
	}
	debug.Value("Camera type", cfg.Capture.Type)

	debug.Step(3, "Initializing upload client")
	uploader, err := upload.NewClient(upload.Config{
		BaseURL:   cfg.Server.BaseURL,
		Endpoint:  cfg.Server.Endpoint,
		FieldName: cfg.Server.FieldName,
		Timeout:   cfg.UploadTimeout(),
	})
	if err != nil {
		return fmt.Errorf("init upload client: %w", err)
	}
	debug.Value("Upload URL", uploader.URL())

	loop := capture.NewLoop(cam, uploader, capture.LoopParams{
		Interval: cfg.Interval(),
		Backoff: capture.Backoff{
			Enabled: cfg.Backoff.Enabled,
			Max:     cfg.MaxBackoff(),
		},
	})
	defer loop.Close()
	debug.Summary(fmt.Sprintf("%s: %s camera, every %v, to %s",
		appName, cfg.Capture.Type, loop.Interval(), uploader.URL()))

	if opts.once {
		out, err := loop.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Println(out.Status)
		return out.Err
	}

	group, gctx := errgroup.WithContext(ctx)

	if opts.webPort > 0 {
		broadcaster := web.NewStatusBroadcaster()
		if debug.IsEnabled(debug.LevelInfo) {
			debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		}
		loop.OnOutcome(broadcaster.PublishOutcome)

		srv, err := web.NewServer(fmt.Sprintf(":%d", opts.webPort), broadcaster, loop, settingsFromConfig(cfg, uploader.URL()))
		if err != nil {
			return fmt.Errorf("init web server: %w", err)
		}
		group.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if opts.autostart || opts.webPort == 0 {
		loop.Start()
	}

	group.Go(func() error {
		<-gctx.Done()
		loop.Stop()
		waitCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		if err := loop.Wait(waitCtx); err != nil {
			debug.Warn(err, "capture loop did not stop in time, cancelling")
			loop.Close()
		}
		return nil
	})

	return group.Wait()
}

// validateCLIOverrides checks the values that were actually given.
func validateCLIOverrides(o cliOverrides) error {
	if o.BaseURL != "" {
		u, err := url.Parse(o.BaseURL)
		if err != nil {
			return fmt.Errorf("url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("url must be an absolute http(s) URL, got %q", o.BaseURL)
		}
	}
	if o.IntervalMs < 0 {
		return fmt.Errorf("interval-ms must be positive, got %d", o.IntervalMs)
	}
	if o.DebugLevel < -1 || o.DebugLevel > 4 {
		return fmt.Errorf("debug must be between 0 and 4, got %d", o.DebugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with the overrides that were given.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.BaseURL != "" {
		cfg.Server.BaseURL = o.BaseURL
	}
	if o.IntervalMs > 0 {
		cfg.Capture.IntervalMs = o.IntervalMs
	}
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
}

func settingsFromConfig(cfg *config.Config, uploadURL string) web.Settings {
	s := web.Settings{
		UploadURL:      uploadURL,
		FieldName:      cfg.Server.FieldName,
		UploadTimeout:  cfg.UploadTimeout().String(),
		CameraType:     cfg.Capture.Type,
		IntervalMs:     cfg.Capture.IntervalMs,
		BackoffEnabled: cfg.Backoff.Enabled,
	}
	if cfg.Backoff.Enabled {
		s.MaxBackoffMs = cfg.Backoff.MaxIntervalMs
	}
	return s
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(g gpio.Driver, cfg *config.Config) (camera.Camera, error) {
	c := cfg.Capture
	switch c.Type {
	case config.CameraCommand:
		return camera.NewCommandCamera(c.Command, c.OutputDir, c.KeepFiles)
	case config.CameraSnapshot:
		return camera.NewSnapshotCamera(c.SnapshotURL, httpc.NewClient(cfg.UploadTimeout())), nil
	case config.CameraGPIOTrigger:
		return camera.NewTriggerCamera(g, camera.TriggerConfig{
			FocusPin:      c.FocusPin,
			ShutterPin:    c.ShutterPin,
			FocusDelay:    cfg.FocusDelay(),
			ShutterDelay:  cfg.ShutterDelay(),
			WatchDir:      c.WatchDir,
			SettleTimeout: cfg.SettleTimeout(),
		})
	case config.CameraStatic:
		return camera.NewStaticCamera(c.ImagePath), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", c.Type)
	}
}
