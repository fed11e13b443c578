package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/boardstream/relay/internal/auth"
	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/config"
	"github.com/boardstream/relay/internal/database"
	"github.com/boardstream/relay/internal/fanout"
	"github.com/boardstream/relay/internal/feed"
	"github.com/boardstream/relay/internal/logging"
	"github.com/boardstream/relay/internal/metrics"
	"github.com/boardstream/relay/internal/notify"
	"github.com/boardstream/relay/internal/presence"
	"github.com/boardstream/relay/internal/server"
	"github.com/boardstream/relay/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay-api",
		Short: "Boardstream realtime relay service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")
	cmd.PersistentFlags().Bool("require-token", defaults.GetBool("auth.require_token"), "Require a bearer token on websocket identify")
	cmd.PersistentFlags().String("feed-driver", defaults.GetString("feed.driver"), "Feed driver (changelog or kafka)")
	cmd.PersistentFlags().Int("feed-poll-interval-ms", defaults.GetInt("feed.poll_interval_ms"), "Changelog poll interval in milliseconds")
	cmd.PersistentFlags().StringSlice("kafka-brokers", nil, "Kafka seed brokers for the kafka feed driver")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.require_token", "require-token")
	bindFlag(cmd, "feed.driver", "feed-driver")
	bindFlag(cmd, "feed.poll_interval_ms", "feed-poll-interval-ms")
	bindFlag(cmd, "kafka.brokers", "kafka-brokers")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	collectors := metrics.New(prometheus.DefaultRegisterer)
	registry := presence.NewRegistry()

	boardService, err := board.NewService(board.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	profileService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	var notificationPublisher notify.Publisher
	var historyAppender server.HistoryAppender = boardService
	var historySource, notificationSource feed.Source

	switch appConfig.FeedDriver {
	case config.FeedDriverKafka:
		publisher, err := feed.NewKafkaPublisher(feed.KafkaPublisherConfig{
			Brokers:            appConfig.KafkaBrokers,
			HistoryTopic:       appConfig.HistoryTopic,
			NotificationsTopic: appConfig.NotificationsTopic,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		notificationPublisher = publisher
		historyAppender = publisher

		historyKafka, err := feed.NewKafkaSource(feed.KafkaSourceConfig{
			Brokers: appConfig.KafkaBrokers,
			Group:   appConfig.KafkaGroup,
			Topic:   appConfig.HistoryTopic,
			Stream:  feed.StreamHistory,
		})
		if err != nil {
			return err
		}
		defer historyKafka.Close()
		notificationKafka, err := feed.NewKafkaSource(feed.KafkaSourceConfig{
			Brokers: appConfig.KafkaBrokers,
			Group:   appConfig.KafkaGroup,
			Topic:   appConfig.NotificationsTopic,
			Stream:  feed.StreamNotifications,
		})
		if err != nil {
			return err
		}
		defer notificationKafka.Close()
		historySource, notificationSource = historyKafka, notificationKafka
	default:
		historySource, err = feed.NewChangelog(feed.ChangelogConfig{
			Database:     db,
			Stream:       feed.StreamHistory,
			PollInterval: appConfig.FeedPollInterval,
		})
		if err != nil {
			return err
		}
		notificationSource, err = feed.NewChangelog(feed.ChangelogConfig{
			Database:     db,
			Stream:       feed.StreamNotifications,
			PollInterval: appConfig.FeedPollInterval,
		})
		if err != nil {
			return err
		}
	}

	notificationStore, err := notify.NewStore(notify.StoreConfig{
		Database:  db,
		Publisher: notificationPublisher,
	})
	if err != nil {
		return err
	}

	dispatcher, err := fanout.NewDispatcher(fanout.DispatcherConfig{
		Registry:      registry,
		Boards:        boardService,
		Profiles:      profileService,
		Notifications: notificationStore,
		Logger:        logger,
		Metrics:       collectors,
	})
	if err != nil {
		return err
	}

	historyConsumer, err := feed.NewConsumer(feed.ConsumerConfig{
		Source:  historySource,
		Stream:  feed.StreamHistory,
		Handler: fanout.MutationHandler(dispatcher),
		Logger:  logger,
		Metrics: collectors,
	})
	if err != nil {
		return err
	}
	notificationConsumer, err := feed.NewConsumer(feed.ConsumerConfig{
		Source:  notificationSource,
		Stream:  feed.StreamNotifications,
		Handler: fanout.NotificationHandler(dispatcher),
		Logger:  logger,
		Metrics: collectors,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Registry:      registry,
		Notifications: notificationStore,
		History:       historyAppender,
		Tokens:        tokenIssuer,
		Logger:        logger,
		Metrics:       collectors,
		RequireToken:  appConfig.RequireToken,
		SendBuffer:    appConfig.SendBuffer,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go historyConsumer.Run(signalCtx)
	go notificationConsumer.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("feed_driver", appConfig.FeedDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
