// Package setup turns the shared CLI flags into configured o11y and redis
// instances, so every service binary wires them the same way.
package setup

import (
	"context"
	"math/rand"
	"time"
	_ "time/tzdata" // timezone lookups must work in scratch containers

	goredis "github.com/go-redis/redis/v8"

	"github.com/spantrap/harness/config/o11y"
	"github.com/spantrap/harness/config/secret"
	"github.com/spantrap/harness/redis"
	"github.com/spantrap/harness/system"
)

type CLI struct {
	AdminAddr string `env:"ADMIN_ADDR" default:":8001" help:"The address for the admin api to listen on"`

	// ServiceName and the o11y span dump are part of the contract with the
	// supervisor the acceptance tests run services under.
	ServiceName string `env:"SERVICE_NAME" default:"kv" hidden:""`

	O11yStatsd           string        `name:"o11y-statsd" env:"O11Y_STATSD" default:"localhost:8125" help:"Address to send statsd metrics"`
	O11yHoneycombEnabled bool          `name:"o11y-honeycomb" env:"O11Y_HONEYCOMB" default:"true" help:"Send traces to honeycomb"`
	O11yHoneycombDataset string        `name:"o11y-honeycomb-dataset" env:"O11Y_HONEYCOMB_DATASET" default:"kv"`
	O11yHoneycombKey     secret.String `name:"o11y-honeycomb-key" env:"O11Y_HONEYCOMB_KEY"`
	O11yFormat           string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"json,text,none" default:"json" help:"Format used for stderr logging"`
	O11ySpanDump         string        `name:"o11y-span-dump" env:"O11Y_SPAN_DUMP" hidden:""`
	O11yDebug            bool          `name:"o11y-debug" env:"O11Y_DEBUG" default:"false" hidden:""`
	O11yRollbarToken     secret.String `name:"o11y-rollbar-token" env:"O11Y_ROLLBAR_TOKEN"`
	O11yRollbarEnv       string        `name:"o11y-rollbar-env" env:"O11Y_ROLLBAR_ENV" default:"production"`

	RedisHost     string        `env:"REDIS_HOST" default:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" default:"6379"`
	RedisDB       int           `name:"redis-db" env:"REDIS_DB" default:"0"`
	RedisPassword secret.String `env:"REDIS_PASSWORD"`
}

func init() {
	rand.Seed(time.Now().Unix())
}

func LoadO11y(version, mode string, cli CLI) (context.Context, func(context.Context), error) {
	cfg := o11y.Config{
		Statsd:            cli.O11yStatsd,
		RollbarToken:      cli.O11yRollbarToken,
		RollbarEnv:        cli.O11yRollbarEnv,
		RollbarServerRoot: "github.com/spantrap/harness/example",
		HoneycombEnabled:  cli.O11yHoneycombEnabled,
		HoneycombDataset:  cli.O11yHoneycombDataset,
		HoneycombKey:      cli.O11yHoneycombKey,
		Format:            cli.O11yFormat,
		SpanDump:          cli.O11ySpanDump,
		Debug:             cli.O11yDebug,
		Version:           version,
		Service:           cli.ServiceName,
		StatsNamespace:    "kv.",
		Mode:              mode,
	}
	return o11y.Setup(context.Background(), cfg)
}

func LoadRedis(cli CLI, sys *system.System) *goredis.Client {
	return redis.Load(redis.Options{
		Host:     cli.RedisHost,
		Port:     cli.RedisPort,
		DB:       cli.RedisDB,
		Password: cli.RedisPassword,
	}, sys)
}
