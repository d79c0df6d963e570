// Command relayd runs the relayqueue runtime: a thread-affine message queue
// per concern, an inbound SQS bridge, outbound webhook delivery, NATS event
// fan-out, Redis-backed leader election, MongoDB audit logging, and an
// admin HTTP + health gRPC surface.
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssecrets "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.relayqueue.dev/internal/common/lifecycle"
	"go.relayqueue.dev/internal/common/logging"
	"go.relayqueue.dev/internal/config"
	"go.relayqueue.dev/internal/mqueue"
	"go.relayqueue.dev/internal/relay/adminapi"
	"go.relayqueue.dev/internal/relay/audit"
	"go.relayqueue.dev/internal/relay/healthrpc"
	"go.relayqueue.dev/internal/relay/leader"
	"go.relayqueue.dev/internal/relay/notify"
	"go.relayqueue.dev/internal/relay/secrets"
	"go.relayqueue.dev/internal/relay/sqsbridge"
	"go.relayqueue.dev/internal/relay/webhook"
)

func main() {
	cfg, err := config.Load(os.Getenv("RELAYQUEUE_CONFIG"))
	if err != nil {
		panic(err)
	}
	logging.Configure(cfg.Dev, "relayd")

	log.Info().Bool("dev", cfg.Dev).Msg("starting relayd")

	lm := lifecycle.NewManager()
	ctx := context.Background()

	// --- Queues, one per concern, so a slow handler on one never blocks
	// another's dispatch. ---
	webhookQueue := mqueue.CreateNewMessageQueue()
	lm.RegisterQueueCreater("webhook-queue", webhookQueue.CancelAndWait)

	sqsQueue := mqueue.CreateNewMessageQueue()
	lm.RegisterQueueCreater("sqsbridge-queue", sqsQueue.CancelAndWait)

	auditQueue := mqueue.CreateNewMessageQueue()
	lm.RegisterQueueCreater("audit-queue", auditQueue.CancelAndWait)

	secretsQueue := mqueue.CreateNewMessageQueue()
	lm.RegisterQueueCreater("secrets-queue", secretsQueue.CancelAndWait)

	// --- MongoDB / audit ---
	var auditLogger *audit.Logger
	if cfg.Mongo.URI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect failed")
		}
		lm.RegisterDatabaseShutdown("mongo", func(ctx context.Context) error {
			return mongoClient.Disconnect(ctx)
		})
		auditRepo := audit.NewRepository(mongoClient.Database(cfg.Mongo.Database))
		auditLogger = audit.NewLogger(auditRepo, auditQueue.QueueID())
	}

	// --- NATS outbound notification ---
	var natsClient *notify.Client
	if cfg.NATS.URL != "" {
		var err error
		natsClient, err = notify.Connect(notify.DefaultConfig(cfg.NATS.URL))
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect failed")
		}
		lm.RegisterWorkerShutdown("nats", func(context.Context) error {
			natsClient.Close()
			return nil
		})
	}

	// --- Webhook delivery ---
	mediator := webhook.New(webhook.DefaultConfig())
	webhookHandler := mqueue.InstallMessageHandler(webhookQueue.QueueID(), func(post mqueue.PostID, body *mqueue.Body) {
		d, _ := body.Body1.(*webhook.Delivery)
		outcome := mediator.Deliver(d)

		outcomeStr := "success"
		if outcome.Result != webhook.ResultSuccess {
			outcomeStr = "failure"
		}

		if auditLogger != nil && d != nil {
			auditOutcome := audit.OutcomeSuccess
			if outcome.Result != webhook.ResultSuccess {
				auditOutcome = audit.OutcomeFailure
			}
			auditLogger.Log(audit.Entry{Queue: "webhook", Action: "deliver", Subject: d.ID, Outcome: auditOutcome})
		}

		if natsClient != nil && d != nil {
			payload, _ := json.Marshal(map[string]string{"id": d.ID, "outcome": outcomeStr})
			if err := natsClient.Publish("relayqueue.webhook.delivered", payload); err != nil {
				log.Warn().Err(err).Msg("failed to publish delivery notification")
			}
		}

		if ch, ok := body.Body2.(chan<- *webhook.Outcome); ok {
			select {
			case ch <- outcome:
			default:
			}
		}
	}, false)

	// --- SQS inbound bridge ---
	// Runs on its own queue: receipt/ack bookkeeping stays off the queue
	// that makes outbound webhook HTTP calls, so a slow endpoint never
	// backs up SQS polling.
	if cfg.SQS.QueueURL != "" {
		bridge, err := sqsbridge.New(ctx, sqsbridge.Config{
			QueueURL:       cfg.SQS.QueueURL,
			Region:         cfg.SQS.Region,
			CustomEndpoint: cfg.SQS.CustomEndpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("sqs bridge init failed")
		}

		sqsHandler := mqueue.InstallMessageHandler(sqsQueue.QueueID(), func(_ mqueue.PostID, body *mqueue.Body) {
			d := body.Body1.(*sqsbridge.Delivery)

			var wire struct {
				TargetURL string            `json:"targetUrl"`
				Payload   string            `json:"payload"`
				AuthToken string            `json:"authToken"`
				Headers   map[string]string `json:"headers"`
			}
			if err := json.Unmarshal(d.Body, &wire); err != nil {
				log.Error().Err(err).Str("messageId", d.MessageID).Msg("sqs message is not a valid webhook delivery, dropping")
				_ = d.Ack(context.Background())
				return
			}

			post := mqueue.PostMessage(webhookHandler, mqueue.Body{
				Body1: &webhook.Delivery{
					ID:        d.MessageID,
					TargetURL: wire.TargetURL,
					Payload:   wire.Payload,
					AuthToken: wire.AuthToken,
					Headers:   wire.Headers,
				},
			}, mqueue.ImmediateTiming())
			if !post.IsNull() {
				if err := d.Ack(context.Background()); err != nil {
					log.Error().Err(err).Str("messageId", d.MessageID).Msg("sqs ack failed")
				}
			}
		}, false)

		bridgeCtx, cancelBridge := context.WithCancel(ctx)
		go func() {
			if err := bridge.Run(bridgeCtx, sqsHandler); err != nil && bridgeCtx.Err() == nil {
				log.Error().Err(err).Msg("sqs bridge exited")
			}
		}()
		lm.RegisterWorkerShutdown("sqsbridge", func(context.Context) error {
			cancelBridge()
			return nil
		})
	}

	// --- Secret rotation (AWS Secrets Manager) ---
	if names := os.Getenv("RELAYQUEUE_SECRETS_NAMES"); names != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("aws config load failed for secrets sync")
		}
		backend := &secrets.AWSBackend{Client: awssecrets.NewFromConfig(awsCfg)}
		sync := secrets.NewSync(backend, strings.Split(names, ","))
		if err := sync.Start(ctx, secretsQueue.QueueID(), 5*time.Minute); err != nil {
			log.Fatal().Err(err).Msg("secret sync start failed")
		}
		lm.RegisterWorkerShutdown("secrets-sync", func(context.Context) error {
			sync.Stop()
			return nil
		})
	}

	// --- Redis leader election ---
	var elector *leader.RedisElector
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		elector = leader.New(redisClient, leader.DefaultConfig(cfg.Leader.LockName))
		elector.OnBecomeLeader(func() { log.Info().Msg("became leader") })
		elector.OnLoseLeadership(func() { log.Warn().Msg("lost leadership") })
		if err := elector.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("leader election start failed")
		}
		lm.RegisterLeaderShutdown("leader-election", func(context.Context) error {
			elector.Stop()
			return redisClient.Close()
		})
	}

	// --- Admin HTTP ---
	adminRouter := adminapi.NewRouter(adminapi.Config{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		JWTSecret:   []byte(cfg.JWTSecret),
	})
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: adminRouter}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin http server exited")
		}
	}()
	lm.RegisterHTTPShutdown("admin-http", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})

	// --- Health gRPC ---
	healthServer := healthrpc.New()
	healthServer.SetServing(true)
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("grpc listen failed")
	}
	go func() {
		if err := healthServer.Serve(grpcLis); err != nil {
			log.Error().Err(err).Msg("health grpc server exited")
		}
	}()
	lm.RegisterWorkerShutdown("health-grpc", func(context.Context) error {
		healthServer.Stop()
		return nil
	})

	log.Info().Str("http", cfg.HTTP.Addr).Str("grpc", cfg.GRPC.Addr).Msg("relayd ready")

	if err := lm.Run(); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
		os.Exit(1)
	}
}
