package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/healthtrack/internal/aggregate"
	"example.com/healthtrack/internal/bus"
	"example.com/healthtrack/internal/cache"
	"example.com/healthtrack/internal/config"
	"example.com/healthtrack/internal/consumer"
	"example.com/healthtrack/internal/dayroll"
	"example.com/healthtrack/internal/egress"
	"example.com/healthtrack/internal/mission"
	scopepg "example.com/healthtrack/internal/scope/postgres"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	repo := scopepg.NewRepository(pool)
	store := aggregate.NewStore(repo,
		aggregate.WithCache(cache.NewRedis(redisClient), cfg.CacheTTL),
		aggregate.WithFetchTimeout(cfg.FetchTimeout),
		aggregate.WithDivergenceThreshold(cfg.DivergenceThreshold),
	)

	eventBus := bus.New(bus.WithQueueSize(cfg.BusQueueSize))
	defer eventBus.Close()

	producer := egress.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	publisher := egress.NewPublisher(producer)

	registry := dayroll.NewRegistry()
	engine := mission.NewEngine(store, mission.DefaultCatalog(), registry, publisher)

	eventBus.Subscribe(store)
	eventBus.Subscribe(engine)
	eventBus.Subscribe(publisher)

	scheduler := dayroll.NewScheduler(registry, eventBus, store,
		dayroll.WithSchedule(cfg.DayRollSchedule))
	if err := scheduler.Start(); err != nil {
		log.Fatalf("failed to start day-roll scheduler: %v", err)
	}
	defer scheduler.Stop()

	handler := consumer.NewRecordHandler(repo, store, eventBus, registry)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("trackerd metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := consumer.NewProcessor(reader, handler)

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			log.Printf("consumer started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("consumer stopped with error (topic=%s): %v", topic, err)
			}
		}(topic, reader)
	}

	<-stop
	log.Println("trackerd shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
}
