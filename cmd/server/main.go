package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-broker/broker"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/jrsteele09/go-session-broker/internal/logging"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/internal/sealed"
	"github.com/jrsteele09/go-session-broker/providers"
	"github.com/jrsteele09/go-session-broker/server"
	"github.com/jrsteele09/go-session-broker/sessions"
	"github.com/jrsteele09/go-session-broker/upstream"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type flags struct {
	port       string
	configFile string
	logLevel   string
}

func main() {
	env := config.EnvVars{}
	f := flags{}
	pflag.StringVarP(&f.port, "port", "p", env.GetPort(), "address to listen on")
	pflag.StringVarP(&f.configFile, "config", "c", env.GetConfigFile(), "broker definitions file (.yaml, .json or .jsonc)")
	pflag.StringVar(&f.logLevel, "log-level", env.GetLogLevel(), "zerolog level")
	pflag.Parse()

	logging.Setup(f.logLevel, env.GetLogPretty())

	if err := run(f); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run(f flags) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New(f.configFile)
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	displayAppname(c.GetAppName())

	registry := metrics.Init(log.Logger)
	brokers, err := buildBrokers(c)
	if err != nil {
		return err
	}

	handler, err := server.New(c, brokers, registry)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	addr := f.port
	if addr != "" && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(httpServer) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// buildBrokers creates one session table per broker so sessions never cross
// broker boundaries.
func buildBrokers(c config.Config) ([]broker.Dispatcher, error) {
	var brokers []broker.Dispatcher

	for _, b := range c.GetBearerBrokers() {
		repo, err := newRepo(c.GetSealMode(), b.TTL)
		if err != nil {
			return nil, err
		}
		client, err := upstream.New(b.Upstream, upstream.WithTimeout(c.GetUpstreamTimeout()))
		if err != nil {
			return nil, fmt.Errorf("broker %s: %w", b.Route, err)
		}
		brokers = append(brokers, broker.NewBearerBroker(b.Route, repo, client, broker.WithTTL(b.TTL)))
		log.Info().Str("broker", b.Route).Str("upstream", client.Host()).Dur("ttl", b.TTL).Msg("bearer broker ready")
	}

	vault := c.GetVaultBroker()
	repo, err := newRepo(c.GetSealMode(), vault.TTL)
	if err != nil {
		return nil, err
	}
	opts := []broker.Option{broker.WithTTL(vault.TTL), broker.WithAllowedProviders(vault.Providers...)}
	if !vault.DisableVerify {
		opts = append(opts, broker.WithVerifiers(providers.NewDefaultRegistry(&http.Client{Timeout: c.GetUpstreamTimeout()})))
	}
	brokers = append(brokers, broker.NewVaultBroker(vault.Route, repo, opts...))
	log.Info().Str("broker", vault.Route).Strs("providers", vault.Providers).Dur("ttl", vault.TTL).Msg("vault broker ready")

	return brokers, nil
}

func newRepo(sealMode string, ttl time.Duration) (*sessions.InMemoryRepo, error) {
	sealer, err := sealed.New(sealMode)
	if err != nil {
		return nil, fmt.Errorf("sealed.New: %w", err)
	}
	repo, err := sessions.NewInMemoryRepo(sessions.WithTTL(ttl), sessions.WithSealer(sealer))
	if err != nil {
		return nil, fmt.Errorf("sessions.NewInMemoryRepo: %w", err)
	}
	return repo, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
