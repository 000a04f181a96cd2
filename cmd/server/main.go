package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/roomcast/internal/adapters/http"
	"github.com/dkeye/roomcast/internal/adapters/pubsub"
	"github.com/dkeye/roomcast/internal/adapters/rtc"
	wssignal "github.com/dkeye/roomcast/internal/adapters/signal"
	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/app/rebroadcast"
	"github.com/dkeye/roomcast/internal/config"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/logging"
)

const shutdownTimeout = 5 * time.Second

var env string

var rootCmd = &cobra.Command{
	Use:   "roomcast",
	Short: "Multi-party media rooms with live HLS rebroadcast",
	Long: `roomcast hosts WebRTC rooms where participants publish and subscribe to
each other's media, and rebroadcasts every room with at least two sources
as a composite HLS stream.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(env, cmd.Flags())
		if err != nil {
			return err
		}
		logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&env, "env", "", "config environment, selects config/config.<env>.yaml")
	rootCmd.Flags().Int("port", 0, "HTTP listen port")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("roomcast failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	rtcCfg := rtc.DefaultConfig()
	rtcCfg.ICEServers = cfg.WebRTC.ICEServers
	rtcCfg.UDPPortMin = cfg.WebRTC.UDPPortMin
	rtcCfg.UDPPortMax = cfg.WebRTC.UDPPortMax
	rtcCfg.AnnouncedIPs = cfg.WebRTC.AnnouncedIPs
	rtcCfg.GatherTimeout = cfg.WebRTC.GatherTimeout
	routers, err := rtc.NewFactory(rtcCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init media engine")
	}

	pipelines := &rebroadcast.Factory{
		Config: rebroadcast.Config{
			OutputDir:    cfg.HLS.OutputDir,
			PublicPath:   cfg.HLS.PublicPath,
			FFmpegPath:   cfg.FFmpeg.Path,
			MinSources:   cfg.Rebroadcast.MinSources,
			StopGrace:    cfg.Rebroadcast.StopGrace,
			CleanupDelay: cfg.Rebroadcast.CleanupDelay,
			Width:        cfg.Rebroadcast.Width,
			Height:       cfg.Rebroadcast.Height,
			RTPHost:      cfg.Rebroadcast.RTPHost,
			Encoder: rebroadcast.EncoderOptions{
				VideoCodec:   cfg.FFmpeg.VideoCodec,
				VideoPreset:  cfg.FFmpeg.VideoPreset,
				VideoBitrate: cfg.FFmpeg.VideoBitrate,
				VideoCRF:     cfg.FFmpeg.VideoCRF,
				Framerate:    cfg.FFmpeg.Framerate,
				AudioCodec:   cfg.FFmpeg.AudioCodec,
				AudioBitrate: cfg.FFmpeg.AudioBitrate,
				AudioSample:  cfg.FFmpeg.AudioSample,
			},
			HLS: rebroadcast.HLSOptions{
				SegmentDuration: cfg.HLS.SegmentDuration,
				PlaylistSize:    cfg.HLS.PlaylistSize,
			},
		},
		Launcher: rebroadcast.ExecLauncher{},
		Ports:    rebroadcast.NewPortPool(cfg.Rebroadcast.RTPPortMin, cfg.Rebroadcast.RTPPortMax),
	}

	publisher := newPublisher(ctx, cfg.PubSub)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event publisher")
		}
	}()

	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		return err
	}
	registry := app.NewRegistry(routers, pipelines, policy, publisher)
	ctl := wssignal.NewSignalWSController(registry, wssignal.Config{
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		PongWait:          cfg.PongWait,
		WriteWait:         cfg.WriteWait,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, registry, ctl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("roomcast server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		// Transcoders get their stop grace before they are killed.
		closeCtx, cancelClose := context.WithTimeout(context.Background(), cfg.Rebroadcast.StopGrace+shutdownTimeout)
		defer cancelClose()
		if err := registry.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("rooms did not close in time")
		}
		if err := ctl.Wait(closeCtx); err != nil {
			log.Warn().Err(err).Msg("signaling connections still open")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

func newPublisher(ctx context.Context, cfg config.PubSubConfig) core.EventPublisher {
	if cfg.Driver != "redis" {
		return core.NoopPublisher{}
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	p, err := pubsub.NewRedisPublisher(dialCtx, pubsub.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  3 * time.Second,
		WriteTimeout: time.Second,
	})
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable, room events stay local")
		return core.NoopPublisher{}
	}
	return p
}
