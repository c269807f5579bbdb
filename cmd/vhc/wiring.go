package main

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/garagehq/vhc/internal/config"
	"github.com/garagehq/vhc/internal/db"
	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/lock"
	"github.com/garagehq/vhc/internal/logging"
	"github.com/garagehq/vhc/internal/notify"
	"github.com/garagehq/vhc/internal/repair"
	"github.com/garagehq/vhc/internal/signature"
)

const defaultConfigPath = "vhc.yaml"

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}

	return cfg, gormDB, nil
}

// stack is everything a long-running command builds from config.
type stack struct {
	cfg     *config.Config
	db      *gorm.DB
	log     *logrus.Logger
	pub     events.Publisher
	service *repair.Service
	closers []io.Closer
}

// Close releases everything buildStack opened, the database last.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.log.WithError(err).Warn("close")
		}
	}
}

// buildStack loads config and wires the logger, store, lock, publishers,
// signature store and repair service.
func buildStack(ctx context.Context, configPath string, out io.Writer) (*stack, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	log, err := logging.New(cfg.Log, out)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	s := &stack{cfg: cfg, db: gormDB, log: log, closers: []io.Closer{sqlDB}}

	pub, err := buildPublisher(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.pub = pub

	var locker lock.Locker = lock.NewDB(gormDB)
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, rdb)
		locker = lock.NewRedis(rdb)
	}

	var store signature.Store = signature.DatabaseStore{}
	if cfg.Signatures.Backend == "gcs" {
		gcs, err := signature.NewGCSStore(ctx, cfg.Signatures.Bucket, cfg.Signatures.Prefix)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, gcs)
		store = gcs
	}

	s.service = repair.NewService(gormDB, repair.Options{
		Log:        log,
		Publisher:  pub,
		Locker:     locker,
		Signatures: store,
		TokenTTL:   cfg.Portal.TokenTTL,
	})
	log.WithFields(logrus.Fields{
		"driver":     cfg.Database.Driver,
		"signatures": cfg.Signatures.Backend,
		"redis":      cfg.Redis.Address != "",
	}).Info("repair engine ready")
	return s, nil
}

// buildPublisher fans events out to the log, Pub/Sub and chat destinations
// that are configured.
func buildPublisher(ctx context.Context, s *stack) (events.Publisher, error) {
	cfg := s.cfg
	fan := events.Fanout{events.NewLogPublisher(s.log)}

	if cfg.Events.PubSubProject != "" {
		ps, err := events.NewPubSubPublisher(ctx, cfg.Events.PubSubProject, cfg.Events.Topic)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, ps)
		fan = append(fan, ps)
	}

	var dests []notify.Destination
	if cfg.Notify.SlackWebhookURL != "" {
		slack, err := notify.NewSlack(cfg.Notify.SlackWebhookURL)
		if err != nil {
			return nil, err
		}
		dests = append(dests, slack)
	}
	if cfg.Notify.DiscordBotToken != "" {
		discord, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.DiscordBotToken,
			ChannelID: cfg.Notify.DiscordChannelID,
		})
		if err != nil {
			return nil, err
		}
		dests = append(dests, discord)
	}
	if sink := notify.NewSink(s.log, dests...); sink.Len() > 0 {
		fan = append(fan, sink)
	}
	return fan, nil
}
