// weather-dashboard polls a SmartThings weather or air-quality sensor and
// serves a classified dashboard over HTTP, MQTT and Prometheus.
//
// With OAuth configured, open /authorize in a browser, or run with
// --authorize to print the URL and then --code to complete the flow on a
// device that cannot receive the redirect.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	weather "github.com/eivy/smartthings-weather"
	"github.com/eivy/smartthings-weather/forecast"
	"github.com/eivy/smartthings-weather/metrics"
	"github.com/eivy/smartthings-weather/mqtt"
	"github.com/eivy/smartthings-weather/oauth"
	"github.com/eivy/smartthings-weather/smartthings"
	"github.com/eivy/smartthings-weather/tokenstore"
	"github.com/eivy/smartthings-weather/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listen     string
		deviceID   string
		logLevel   string
		once       bool
		authorize  bool
		code       string
		logout     bool
	)
	flagSet := pflag.NewFlagSet("weather-dashboard", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flagSet.StringVar(&listen, "listen", "", "HTTP listen address (overrides Listen)")
	flagSet.StringVar(&deviceID, "device", "", "device ID to show (overrides DeviceID)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (overrides Log.Level)")
	flagSet.BoolVar(&once, "once", false, "refresh once, print the snapshot as JSON and exit")
	flagSet.BoolVar(&authorize, "authorize", false, "print the authorization URL and exit")
	flagSet.StringVar(&code, "code", "", "complete authorization with this code and exit")
	flagSet.BoolVar(&logout, "logout", false, "forget the stored credential and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	config, err := weather.ReadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		config.Listen = listen
	}
	if deviceID != "" {
		config.DeviceID = deviceID
	}
	if logLevel != "" {
		config.Log.Level = logLevel
	}

	log, err := newLogger(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()

	var store tokenstore.Store = tokenstore.NewMemory()
	if config.TokenStore != "" {
		sqlite, err := tokenstore.OpenSQLite(config.TokenStore)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		store = sqlite
	}

	var manager *oauth.Manager
	var tokens smartthings.TokenSource = smartthings.StaticToken(config.AccessToken)
	if config.UseOAuth() {
		manager = oauth.NewManager(oauth.Config{
			ClientID:     config.OAuth.ClientID,
			ClientSecret: config.OAuth.ClientSecret,
			RedirectURI:  config.OAuth.RedirectURI,
			Scopes:       config.OAuth.Scopes,
			AuthURL:      config.OAuth.AuthURL,
			TokenURL:     config.OAuth.TokenURL,
		}, store, oauth.WithLogger(log), oauth.WithObserver(collector))
		tokens = manager
		collector.SetAuthorized(manager.IsAuthorized(ctx))
	}

	if authorize || code != "" || logout {
		if manager == nil {
			return errors.New("OAuth is not configured")
		}
		return runAuthCommand(ctx, manager, authorize, code)
	}

	api := smartthings.NewClient(config.APIBaseURL, tokens,
		smartthings.WithLogger(log), smartthings.WithObserver(collector))

	opts := []weather.Option{
		weather.WithDeviceID(config.DeviceID),
		weather.WithRecorder(collector),
		weather.WithLogger(log),
	}
	if config.Forecast.Enabled {
		opts = append(opts, weather.WithForecast(forecast.NewClient(log), config.Forecast.Locations))
	}
	if manager != nil {
		opts = append(opts, weather.WithLogouter(manager))
	}

	var mqttClient *mqtt.Client
	if config.MQTT.Enabled() && !once {
		mqttClient = mqtt.NewClient(config.MQTT, log)
		if err := mqttClient.Connect(); err != nil {
			return err
		}
		defer mqttClient.Disconnect()
		mqttClient.StartStatusPublisher(ctx)
		opts = append(opts, weather.WithPublisher(mqttClient))
	}
	dashboard := weather.NewDashboard(api, opts...)

	if once {
		snap, err := dashboard.Refresh(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	if mqttClient != nil {
		if err := mqttClient.SubscribeCommands(ctx, dashboard); err != nil {
			return err
		}
	}
	return serve(ctx, config, log, dashboard, manager, mqttClient, collector)
}

func runAuthCommand(ctx context.Context, manager *oauth.Manager, authorize bool, code string) error {
	switch {
	case authorize:
		req, err := manager.BeginAuthorization(ctx)
		if err != nil {
			return err
		}
		fmt.Println(req.URL)
		return nil
	case code != "":
		cred, err := manager.CompleteAuthorization(ctx, code)
		if err != nil {
			return err
		}
		fmt.Printf("authorized, token expires at %s\n", cred.ExpiresAt().Format(time.RFC3339))
		return nil
	}
	if err := manager.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func serve(ctx context.Context, config weather.Config, log *logrus.Logger, dashboard *weather.Dashboard, manager *oauth.Manager, broker *mqtt.Client, collector *metrics.Collector) error {
	server := &web.Server{
		Dashboard: dashboard,
		Collector: collector,
		AccessLog: log.WriterLevel(logrus.DebugLevel),
		Log:       log,
	}
	if manager != nil {
		server.Auth = manager
	}
	if broker != nil {
		server.Broker = broker
	}
	if config.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collector)
		server.Registry = registry
		server.MetricsPath = config.Metrics.Path
	}

	srv := &http.Server{
		Addr:              config.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", config.Listen).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go dashboard.Run(ctx, config.PollInterval)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(config weather.Config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(config.Log.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch strings.ToLower(config.Log.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Log.Format)
	}
	return log, nil
}
