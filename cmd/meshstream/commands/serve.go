package commands

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/PowerDNS/simpleblob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wojas/go-healthz"
	"golang.org/x/sync/errgroup"

	"github.com/meshstream/meshstream/archive"
	"github.com/meshstream/meshstream/demo"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/status"
	"github.com/meshstream/meshstream/status/healthtracker"
	"github.com/meshstream/meshstream/status/starttracker"
	"github.com/meshstream/meshstream/streamer"
	"github.com/meshstream/meshstream/transport"
)

var (
	withDemo bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&withDemo, "demo", false, "Serve the animated demo scene, same as demo.enabled")
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := logrus.WithField("scene", conf.Scene.Name)
	instance := conf.InstanceName()
	archiving := conf.Stream.ArchiveInterval > 0

	sc, err := scene.New(conf.Scene.Bias, conf.SceneCamera(),
		scene.WithName(conf.Scene.Name),
		scene.WithStripeLimit(conf.Scene.StripeLimit),
		scene.WithLogger(logrus.StandardLogger()))
	if err != nil {
		return err
	}
	status.SetScene(sc)

	opt := streamer.Options{
		FlushHealth: healthtracker.New(conf.Health.Flush, "flush", "send to all clients"),
		Start:       starttracker.New(conf.Health.Startup, "serve", archiving),
		Logger:      logrus.StandardLogger(),
	}
	if conf.Storage.Type != "" {
		st, err := simpleblob.GetBackend(ctx, conf.Storage.Type, conf.Storage.Options)
		if err != nil {
			return err
		}
		l.WithField("storage_type", conf.Storage.Type).Info("Storage backend initialised")
		status.SetStorage(st)
		if archiving {
			opt.Archive = archive.New(st, conf.Scene.Name, instance, conf.Stream.MaxFrameSize, logrus.StandardLogger())
			opt.ArchiveHealth = healthtracker.New(conf.Health.Archive, "archive", "store a capture")
		}
	}

	s, err := streamer.New(sc, conf.Stream, opt)
	if err != nil {
		return err
	}
	status.SetStreamer(s)
	defer s.Close()

	srv := transport.New(conf.WebSocket, conf.Stream.WriteTimeout, transport.StreamHandler{S: s}, l)
	srv.OnListen = func(addr net.Addr) {
		opt.Start.SetListening()
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.Run(ctx)
	})
	eg.Go(func() error {
		return srv.Run(ctx)
	})
	eg.Go(func() error {
		// Latest-value subscription, so that publishing never blocks on us
		sub := s.Events().Clients.Subscribe(true)
		defer sub.Close()
		for {
			ci, err := sub.Next(ctx)
			if err != nil {
				return err
			}
			healthz.SetMeta("clients", ci.Count)
		}
	})
	if conf.Demo.Enabled || withDemo {
		d := demo.New(sc, conf.Demo, logrus.StandardLogger())
		eg.Go(func() error {
			return d.Run(ctx)
		})
	}

	healthz.AddBuildInfo()
	if hostname, err := os.Hostname(); err == nil {
		healthz.SetMeta("hostname", hostname)
	}
	healthz.SetMeta("version", version)
	healthz.SetMeta("instance", instance)
	healthz.SetMeta("scene", conf.Scene.Name)

	status.StartHTTPServer(conf)

	l.WithFields(logrus.Fields{
		"instance":  instance,
		"websocket": conf.WebSocket.Address,
		"archiving": archiving,
	}).Info("Serving scene")
	err = eg.Wait()
	if errors.Is(err, context.Canceled) && rootCtx.Err() == nil {
		l.Info("Shutting down")
		return nil
	}
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a scene to WebSocket clients",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			logrus.WithError(err).Fatal("Error")
		}
	},
}
