package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookgo/inject"
	"github.com/facebookgo/startstop"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/honeycombio/queuerouter/app"
	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/internal/health"
	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
)

// set by the build.
var BuildID string
var version string

type graphLogger struct {
}

func (g graphLogger) Debugf(format string, v ...interface{}) {
	fmt.Printf(format, v...)
	fmt.Println()
}

func main() {
	opts, err := config.NewCmdEnvOptions(os.Args)
	if err != nil {
		fmt.Printf("Command line parsing error '%s' -- call with --help for usage.\n", err)
		os.Exit(1)
	}

	if BuildID == "" {
		version = "dev"
	} else {
		version = BuildID
	}

	if opts.Version {
		fmt.Println("Version: " + version)
		os.Exit(0)
	}

	a := app.App{
		Version: version,
	}

	c, err := config.NewConfig(opts, func(err error) {
		if a.Logger != nil {
			a.Logger.Error().WithField("error", err).Logf("error loading config")
		}
	})
	if err != nil {
		fmt.Printf("%+v\n", err)
		os.Exit(1)
	}
	if opts.Validate {
		fmt.Println("Config validated successfully.")
		os.Exit(0)
	}

	// get desired implementation for each dependency to inject
	lgr := logger.GetLoggerImplementation(c)
	metricsSingleton := metrics.GetMetricsImplementation(c)
	clock := clockwork.NewRealClock()
	loader := app.NewLoader(clock)

	logLevel := c.GetLoggerLevel().String()
	if err := lgr.SetLevel(logLevel); err != nil {
		fmt.Printf("unable to set logging level: %v\n", err)
		os.Exit(1)
	}

	driverObjects, err := app.DriverObjects(c, loader)
	if err != nil {
		fmt.Printf("unable to set up storage: %v\n", err)
		os.Exit(1)
	}

	var g inject.Graph
	if opts.Debug {
		g.Logger = graphLogger{}
	}
	objects := []*inject.Object{
		{Value: c},
		{Value: lgr},
		{Value: metricsSingleton, Name: "metrics"},
		{Value: loader},
		{Value: clock},
		{Value: &health.Health{}},
		{Value: &a},
	}
	if err := g.Provide(append(objects, driverObjects...)...); err != nil {
		fmt.Printf("failed to provide injection graph. error: %+v\n", err)
		os.Exit(1)
	}
	if err := g.Populate(); err != nil {
		fmt.Printf("failed to populate injection graph. error: %+v\n", err)
		os.Exit(1)
	}

	// the logger provided to startstop must be valid before any service is
	// started, meaning it can't rely on injected configs
	ststLogger := logrus.New()
	ststLogger.SetLevel(logrus.InfoLevel)

	defer startstop.Stop(g.Objects(), ststLogger)
	if err := startstop.Start(g.Objects(), ststLogger); err != nil {
		fmt.Printf("failed to start injected dependencies. error: %+v\n", err)
		os.Exit(1)
	}

	metricsSingleton.Store("CLAIM_LIMIT", float64(c.GetLimitsConfig().DefaultClaimLimit))

	sigsToExit := make(chan os.Signal, 1)
	signal.Notify(sigsToExit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigsToExit
	a.Logger.Error().Logf("Caught signal \"%s\"", sig)
}
