package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/alecthomas/kong"

	"github.com/spantrap/harness/httpserver"
	"github.com/spantrap/harness/httpserver/healthcheck"
	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/system"
	"github.com/spantrap/harness/termination"

	"github.com/spantrap/harness/example/api/api"
	"github.com/spantrap/harness/example/cmd"
	"github.com/spantrap/harness/example/cmd/setup"
	"github.com/spantrap/harness/example/store"
	"github.com/spantrap/harness/example/webhook"
)

type cli struct {
	setup.CLI

	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" default:"5s" help:"How long to keep draining requests after a signal" hidden:""`
	APIAddr       string        `env:"API_ADDR" default:":8000" help:"Listen address for the key value API"`
	WebhookURL    string        `env:"WEBHOOK_URL" help:"If set, every write is posted to this base URL"`
}

func main() {
	if err := run(cmd.Version, cmd.Date); err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("api: ", err)
	}
	log.Println("api: exited cleanly")
}

func run(version, date string) (err error) {
	cli := cli{}
	kong.Parse(&cli)

	ctx, cleanup, err := setup.LoadO11y(version, "api", cli.CLI)
	if err != nil {
		return err
	}
	defer cleanup(ctx)

	ctx, span := o11y.StartSpan(ctx, "main: run")
	defer o11y.End(span, &err)

	o11y.Log(ctx, "starting api",
		o11y.Field("version", version),
		o11y.Field("build_date", date),
	)

	sys := system.New(ctx)
	defer sys.Cleanup(context.Background())

	err = loadAPI(ctx, cli, version, sys)
	if err != nil {
		return err
	}

	// Last, so it sees every health check loaded above.
	_, err = healthcheck.Load(ctx, cli.AdminAddr, sys)
	if err != nil {
		return err
	}

	return sys.Run(cli.ShutdownDelay)
}

func loadAPI(ctx context.Context, cli cli, version string, sys *system.System) error {
	redis := setup.LoadRedis(cli.CLI, sys)

	opts := api.Options{
		Store:   store.New(redis),
		Version: version,
	}
	if cli.WebhookURL != "" {
		opts.Webhook = webhook.New(cli.WebhookURL)
	}

	_, err := httpserver.Load(ctx, httpserver.Config{
		Name:    "api",
		Addr:    cli.APIAddr,
		Handler: api.New(ctx, opts).Handler(),
	}, sys)
	return err
}
