package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/azaliaz/bookly/book-service/internal/config"
	"github.com/azaliaz/bookly/book-service/internal/events"
	"github.com/azaliaz/bookly/book-service/internal/logger"
	"github.com/azaliaz/bookly/book-service/internal/server"
	"github.com/azaliaz/bookly/book-service/internal/storage"
)

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatal(err)
	}
	log := logger.Get(cfg.Debug)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		<-c

		log.Debug().Msg("ctx cancel; catch os signal")
		cancel()
	}()

	log.Debug().Str("addr", cfg.Addr).Str("driver", cfg.DBDriver).Strs("blocked", cfg.Policy.BlockedForWrite).
		Strs("excluded", cfg.Policy.ExcludedFromSearch).Strs("masked", cfg.Policy.MaskedForDisplay).Msg("config loaded")

	var stor server.Storage
	if err = storage.Migrations(cfg.DBDsn, cfg.MigratePath); err != nil {
		log.Error().Err(err).Msg("migrations failed")
	}
	stor, err = storage.Open(ctx, cfg.DBDriver, cfg.DBDsn)
	if err != nil {
		log.Error().Err(err).Msg("connecting to data base failed, using in-memory storage")
		if cfg.Seed {
			stor = storage.NewSeeded(storage.SeedData())
		} else {
			stor = storage.New()
		}
	}
	defer stor.Close()

	var pub events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Error().Err(err).Msg("rabbitmq unavailable, change events disabled")
		} else {
			pub = amqpPub
		}
	}
	defer pub.Close()

	serv := server.New(*cfg, stor, pub)
	group, gCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serv.Run(gCtx)
	})
	group.Go(func() error {
		<-gCtx.Done()
		return serv.ShutdownServer()
	})

	if err = group.Wait(); err != nil {
		log.Info().Str("stoping reason", err.Error()).Msg("Server stoped")
		return
	}
	log.Info().Msg("server stoped")
}
