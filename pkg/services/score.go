package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"socialfeed/pkg/feed"
	"socialfeed/pkg/metrics"
	"socialfeed/pkg/model"
	"socialfeed/pkg/storage"
	sn_trace "socialfeed/pkg/trace"
	"socialfeed/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ScoreService keeps post scores in line with the reactions they receive.
// Reaction events are published on a topic exchange and applied by a pool of
// consumers of the local region.
type ScoreService interface {
	PublishReaction(ctx context.Context, reqID int64, event model.ReactionEvent) error
	ApplyReaction(ctx context.Context, reqID int64, event model.ReactionEvent) error
}

// score increments are not idempotent
var _ weaver.NotRetriable = ScoreService.ApplyReaction
var _ weaver.NotRetriable = ScoreService.PublishReaction

type scoreServiceOptions struct {
	RabbitMQAddr     map[string]string `toml:"rabbitmq_address"`
	RabbitMQPort     map[string]int    `toml:"rabbitmq_port"`
	RabbitMQUsername string            `toml:"rabbitmq_username"`
	RabbitMQPassword string            `toml:"rabbitmq_password"`
	MongoDBAddr      map[string]string `toml:"mongodb_address"`
	MongoDBPort      map[string]int    `toml:"mongodb_port"`
	NumWorkers       int               `toml:"num_workers"`
	Region           string
}

type scoreService struct {
	weaver.Implements[ScoreService]
	weaver.WithConfig[scoreServiceOptions]
	postStorageService weaver.Ref[PostStorageService]
	mongoClient        *mongo.Client
	amqChannel         *amqp.Channel
	amqConnection      *amqp.Connection
	// guards amqChannel
	mu sync.Mutex
}

func (s *scoreService) Init(ctx context.Context) error {
	logger := s.Logger(ctx)

	region, err := utils.Region()
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	s.Config().Region = region

	s.mongoClient, err = storage.MongoDBClient(ctx, s.Config().MongoDBAddr[region], s.Config().MongoDBPort[region])
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	s.amqChannel, s.amqConnection, err = storage.RabbitMQClient(ctx, s.Config().RabbitMQUsername, s.Config().RabbitMQPassword, s.Config().RabbitMQAddr[region], s.Config().RabbitMQPort[region])
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	err = s.amqChannel.ExchangeDeclare(storage.REACTIONS_EXCHANGE, "topic", true, false, false, false, nil)
	if err != nil {
		logger.Error("error declaring exchange for rabbitmq", "msg", err.Error())
		return err
	}

	logger.Info("initializing workers for score service", "region", region, "nworkers", s.Config().NumWorkers,
		"rabbitmq_addr", s.Config().RabbitMQAddr[region], "rabbitmq_port", s.Config().RabbitMQPort[region],
		"mongodb_addr", s.Config().MongoDBAddr[region], "mongodb_port", s.Config().MongoDBPort[region],
	)
	// workers outlive Init
	workerCtx := context.WithoutCancel(ctx)
	for i := 1; i <= s.Config().NumWorkers; i++ {
		go func(id int) {
			err := s.workerThread(workerCtx)
			if err != nil {
				logger.Error("error in worker thread", "worker", id, "msg", err.Error())
			}
		}(i)
	}
	return nil
}

func (s *scoreService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.amqChannel != nil {
		s.amqChannel.Close()
	}
	if s.amqConnection != nil {
		return s.amqConnection.Close()
	}
	return nil
}

// PublishReaction queues event for the score workers of every region
func (s *scoreService) PublishReaction(ctx context.Context, reqID int64, event model.ReactionEvent) error {
	logger := s.Logger(ctx)
	logger.Debug("entering PublishReaction", "req_id", reqID, "post_id", event.PostID, "kind", event.Kind, "undo", event.Undo)

	if event.EventID == 0 {
		event.EventID = rand.Int63()
	}
	event.ReqID = reqID
	event.Timestamp = time.Now().UnixMilli()
	event.SpanContext = sn_trace.FromContext(ctx)

	msgJSON, err := json.Marshal(event)
	if err != nil {
		logger.Error("error converting rabbitmq message to json", "msg", err.Error())
		return err
	}
	amqMsg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         msgJSON,
	}

	// scores live in the region's own database, so only its workers apply it
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.amqChannel.PublishWithContext(ctx, storage.REACTIONS_EXCHANGE, storage.ReactionsRoutingKey(s.Config().Region), false, false, amqMsg)
	if err != nil {
		logger.Error("error publishing reaction to rabbitmq", "msg", err.Error())
		return fmt.Errorf("error publishing reaction: %w", err)
	}
	return nil
}

// ApplyReaction adds the score delta of event to its post once. Events that do
// not change the score are skipped, as are redelivered events and events for
// posts that no longer exist.
func (s *scoreService) ApplyReaction(ctx context.Context, reqID int64, event model.ReactionEvent) error {
	logger := s.Logger(ctx)
	logger.Debug("entering ApplyReaction", "req_id", reqID, "post_id", event.PostID, "kind", event.Kind, "undo", event.Undo)

	delta := feed.ScoreDelta(event.Kind, event.Undo, event.Option)
	if delta == 0 {
		logger.Debug("reaction does not change score", "req_id", reqID, "kind", event.Kind, "option", event.Option)
		return nil
	}

	start_ms := time.Now().UnixMilli()
	collection := s.mongoClient.Database(storage.POSTS_DB).Collection(storage.POSTS_COLLECTION)
	filter, update := scoreUpdate(event, delta)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logger.Error("error updating post score in mongodb", "msg", err.Error())
		return err
	}
	region := metrics.RegionLabel{Region: s.Config().Region}
	if result.MatchedCount == 0 {
		count, err := collection.CountDocuments(ctx, bson.D{{Key: "post_id", Value: event.PostID}}, options.Count().SetLimit(1))
		if err != nil {
			logger.Error("error reading post from mongodb", "msg", err.Error())
			return err
		}
		if count > 0 {
			logger.Debug("reaction already applied", "req_id", reqID, "post_id", event.PostID, "event_id", event.EventID)
			metrics.DuplicateReactions.Get(region).Inc()
			return nil
		}
		logger.Debug("inconsistency! reaction to missing post", "req_id", reqID, "post_id", event.PostID)
		metrics.Inconsistencies.Get(region).Inc()
		return nil
	}
	metrics.ScoreUpdates.Get(metrics.ReactionLabel{Region: s.Config().Region, Kind: string(event.Kind)}).Inc()

	trace.SpanFromContext(ctx).AddEvent("updating post score in mongodb",
		trace.WithAttributes(
			attribute.Int64("score_start_ms", start_ms),
			attribute.Int64("score_end_ms", time.Now().UnixMilli()),
			attribute.Int64("delta", delta),
		))

	// the score is already applied, a stale cache entry expires on its own
	err = s.postStorageService.Get().InvalidatePost(ctx, reqID, event.PostID)
	if err != nil {
		logger.Warn("error invalidating cached post", "req_id", reqID, "post_id", event.PostID, "msg", err.Error())
	}
	return nil
}

func (s *scoreService) onReceivedWorker(ctx context.Context, body []byte) error {
	logger := s.Logger(ctx)

	var msg model.ReactionEvent
	err := json.Unmarshal(body, &msg)
	if err != nil {
		logger.Error("error parsing json message", "msg", err.Error())
		return err
	}
	ctx = sn_trace.RemoteContext(ctx, msg.SpanContext)

	region := metrics.RegionLabel{Region: s.Config().Region}
	metrics.ReceivedReactions.Get(region).Inc()
	metrics.QueueDurationMs.Get(region).Put(float64(time.Now().UnixMilli() - msg.Timestamp))

	logger.Debug("received rabbitmq message", "req_id", msg.ReqID, "post_id", msg.PostID, "kind", msg.Kind)
	trace.SpanFromContext(ctx).AddEvent("reading rabbitmq message",
		trace.WithAttributes(
			attribute.Int64("queue_start_ms", msg.Timestamp),
			attribute.Int64("queue_end_ms", time.Now().UnixMilli()),
		))
	return s.ApplyReaction(ctx, msg.ReqID, msg)
}

func (s *scoreService) workerThread(ctx context.Context) error {
	logger := s.Logger(ctx)

	ch, conn, err := storage.RabbitMQClient(ctx, s.Config().RabbitMQUsername, s.Config().RabbitMQPassword, s.Config().RabbitMQAddr[s.Config().Region], s.Config().RabbitMQPort[s.Config().Region])
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	err = ch.ExchangeDeclare(storage.REACTIONS_EXCHANGE, "topic", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("error declaring exchange for rabbitmq: %w", err)
	}
	routingKey := storage.ReactionsRoutingKey(s.Config().Region)
	_, err = ch.QueueDeclare(routingKey, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("error declaring queue for rabbitmq: %w", err)
	}
	err = ch.QueueBind(routingKey, routingKey, storage.REACTIONS_EXCHANGE, false, nil)
	if err != nil {
		return fmt.Errorf("error binding queue for rabbitmq: %w", err)
	}
	msgs, err := ch.Consume(routingKey, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("error consuming queue: %w", err)
	}

	for msg := range msgs {
		err := s.onReceivedWorker(ctx, msg.Body)
		if err != nil {
			// a failed delivery gets one more attempt
			logger.Warn("error in worker thread", "msg", err.Error(), "redelivered", msg.Redelivered)
			msg.Nack(false, !msg.Redelivered)
			continue
		}
		msg.Ack(false)
	}
	return fmt.Errorf("rabbitmq delivery channel closed")
}
