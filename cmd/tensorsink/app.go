package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin"
	oklogrun "github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dudk/tensorsink"
	"github.com/dudk/tensorsink/config"
	"github.com/dudk/tensorsink/log"
	"github.com/dudk/tensorsink/metric"
	"github.com/dudk/tensorsink/mock"
	"github.com/dudk/tensorsink/observer/wsfeed"
	"github.com/dudk/tensorsink/pipeline"
)

// options are command line flags. Zero values keep settings from the
// configuration file.
type options struct {
	config         string
	debug          bool
	name           string
	properties     map[string]string
	numBuffers     int
	interval       time.Duration
	size           int
	realtime       bool
	metricsAddress string
	feedPath       string
	serve          bool
}

func (o *options) bind(app *kingpin.Application) *options {
	app.Flag("config", "Path to yaml configuration file").Short('c').Envar("TENSORSINK_CONFIG").StringVar(&o.config)
	app.Flag("debug", "Enable debug logging").Envar("TENSORSINK_DEBUG").BoolVar(&o.debug)
	app.Flag("name", "Element name").StringVar(&o.name)
	app.Flag("set", "Element property, e.g. --set render-rate=15ms").Short('s').StringMapVar(&o.properties)
	app.Flag("num-buffers", "Number of buffers produced by source").IntVar(&o.numBuffers)
	app.Flag("interval", "Timestamp interval between buffers").DurationVar(&o.interval)
	app.Flag("size", "Buffer size in bytes").IntVar(&o.size)
	app.Flag("realtime", "Produce buffers in real time").BoolVar(&o.realtime)
	app.Flag("metrics-address", "Address to bind HTTP metrics listener").Envar("TENSORSINK_METRICS_ADDRESS").StringVar(&o.metricsAddress)
	app.Flag("feed", "HTTP path of websocket feed").StringVar(&o.feedPath)
	app.Flag("serve", "Keep serving metrics after end of stream").BoolVar(&o.serve)
	return o
}

// load returns configuration file content with flags applied on top.
func (o *options) load() (*config.File, error) {
	cfg := config.Default()
	if o.config != "" {
		f, err := config.Load(o.config)
		if err != nil {
			return nil, err
		}
		cfg = *f
	}
	if o.name != "" {
		cfg.Element.Name = o.name
	}
	if len(o.properties) > 0 && cfg.Element.Properties == nil {
		cfg.Element.Properties = make(config.Properties, len(o.properties))
	}
	for name, value := range o.properties {
		cfg.Element.Properties[name] = value
	}
	if o.numBuffers > 0 {
		cfg.Source.NumBuffers = o.numBuffers
	}
	if o.interval > 0 {
		cfg.Source.Interval = o.interval
	}
	if o.size > 0 {
		cfg.Source.Size = o.size
	}
	if o.realtime {
		cfg.Source.Realtime = true
	}
	if o.metricsAddress != "" {
		cfg.Metrics.Address = o.metricsAddress
	}
	if o.feedPath != "" {
		cfg.Metrics.Feed = o.feedPath
	}
	return &cfg, nil
}

// app is a pipeline with its http endpoints.
type app struct {
	pipeline *pipeline.Pipeline
	sink     *tensorsink.Sink
	feed     *wsfeed.Feed
	log      logrus.FieldLogger
}

func newApp(cfg *config.File, logger logrus.FieldLogger) (*app, error) {
	sink := tensorsink.New(
		tensorsink.WithName(cfg.Element.Name),
		tensorsink.WithLogger(logger),
		tensorsink.WithMetric(metric.Meter(cfg.Element.Name)),
	)
	if err := cfg.Element.Properties.Apply(sink); err != nil {
		return nil, err
	}
	source := &mock.Source{
		Limit:    cfg.Source.NumBuffers,
		Interval: cfg.Source.Interval,
		Size:     cfg.Source.Size,
		Realtime: cfg.Source.Realtime,
	}
	feed := wsfeed.New(wsfeed.WithLogger(logger.WithField("component", "feed")))
	feed.Attach(sink)
	return &app{
		pipeline: pipeline.New(source, sink, pipeline.WithLogger(logger)),
		sink:     sink,
		feed:     feed,
		log:      logger,
	}, nil
}

// handler serves metrics and the feed.
func (a *app) handler(feedPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle(feedPath, a.feed)
	return mux
}

// stream runs the pipeline until the terminal bus message.
func (a *app) stream(ctx context.Context) error {
	errc := a.pipeline.Run(ctx)
	status, busErr := pipeline.Watch(ctx, a.pipeline.Bus(), func(m pipeline.Message) {
		a.log.WithFields(logrus.Fields{
			"message": m.Type,
			"source":  m.Source,
		}).Debug("bus message")
	})
	err := pipeline.Wait(errc)
	stats := a.sink.Stats()
	a.log.WithFields(logrus.Fields{
		"status":   status,
		"received": stats.Received,
		"dropped":  stats.Dropped,
		"emitted":  stats.Emitted,
		"position": stats.Position,
	}).Info("stream finished")
	if err != nil {
		return err
	}
	if status == pipeline.StatusError {
		return busErr
	}
	return nil
}

func run(opts *options) error {
	logger := log.GetLogger()
	if opts.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to create element")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var g oklogrun.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				select {
				case sig := <-sigc:
					logger.WithField("signal", sig).Info("received signal, requesting shutdown")
				case <-ctx.Done():
				}
				return nil
			},
			func(error) {
				cancel()
			},
		)
	}
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				if err := a.stream(ctx); err != nil {
					return err
				}
				if opts.serve {
					<-ctx.Done()
				}
				return nil
			},
			func(error) {
				cancel()
			},
		)
	}
	{
		srv := &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: a.handler(cfg.Metrics.Feed),
		}
		g.Add(
			func() error {
				logger.WithField("address", cfg.Metrics.Address).Info("listen")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			},
			func(error) {
				a.feed.Close()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			},
		)
	}
	return g.Run()
}
