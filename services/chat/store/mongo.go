// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var storeTracer = otel.Tracer("aleutian.chat.store")

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// MongoStore implements ConversationStore on MongoDB.
//
// # Description
//
// Conversations and messages live in separate collections. IDs are
// ObjectID hex strings generated client-side so entities carry their ID
// before the insert round-trips. Aggregate counters are updated with a
// single $inc/$set update, which MongoDB applies atomically per document.
//
// # Thread Safety
//
// Thread-safe; the driver's Client is safe for concurrent use.
type MongoStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewMongoStore connects to MongoDB and prepares the collections and
// indexes the chat flow relies on.
//
// # Inputs
//
//   - ctx: Context bounding connection and index creation.
//   - uri: MongoDB connection string.
//   - database: Database name.
//
// # Outputs
//
//   - *MongoStore: Ready for use.
//   - error: Non-nil when the server is unreachable or index creation
//     failed.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	slog.Info("Connected to MongoDB", "database", database)
	return s, nil
}

// ensureIndexes creates the listing and lookup indexes. Index creation is
// idempotent; existing indexes are left untouched.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isArchived", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}

	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

// CreateConversation implements ConversationStore.
func (s *MongoStore) CreateConversation(ctx context.Context, conv *datatypes.Conversation) error {
	ctx, span := storeTracer.Start(ctx, "MongoStore.CreateConversation")
	defer span.End()

	now := time.Now().UTC()
	conv.ID = primitive.NewObjectID().Hex()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = now
	}

	if _, err := s.conversations.InsertOne(ctx, conv); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert conversation: %w", err)
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))
	return nil
}

// GetConversation implements ConversationStore.
func (s *MongoStore) GetConversation(ctx context.Context, id, userID string) (*datatypes.Conversation, error) {
	ctx, span := storeTracer.Start(ctx, "MongoStore.GetConversation")
	defer span.End()

	var conv datatypes.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations implements ConversationStore.
func (s *MongoStore) ListConversations(ctx context.Context, userID string, limit int) ([]datatypes.Conversation, error) {
	ctx, span := storeTracer.Start(ctx, "MongoStore.ListConversations")
	defer span.End()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	cursor, err := s.conversations.Find(ctx,
		bson.M{"userId": userID, "isArchived": false},
		options.Find().
			SetSort(bson.D{{Key: "lastMessageAt", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	conversations := make([]datatypes.Conversation, 0, limit)
	if err := cursor.All(ctx, &conversations); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return conversations, nil
}

// DeleteConversation implements ConversationStore. The ownership check and
// the deletes are sequential, not transactional; a crash between them
// leaves orphaned messages, which the next delete of the same conversation
// would clean up.
func (s *MongoStore) DeleteConversation(ctx context.Context, id, userID string) error {
	ctx, span := storeTracer.Start(ctx, "MongoStore.DeleteConversation")
	defer span.End()

	if _, err := s.GetConversation(ctx, id, userID); err != nil {
		return err
	}

	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversationId": id}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := s.conversations.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete conversation: %w", err)
	}

	slog.Info("Deleted conversation and its messages", "conversationId", id)
	return nil
}

// AppendMessage implements ConversationStore.
func (s *MongoStore) AppendMessage(ctx context.Context, msg *datatypes.StoredMessage) error {
	ctx, span := storeTracer.Start(ctx, "MongoStore.AppendMessage")
	defer span.End()

	msg.ID = primitive.NewObjectID().Hex()
	msg.CreatedAt = time.Now().UTC()

	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert message: %w", err)
	}
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.role", msg.Role),
	)
	return nil
}

// ListMessages implements ConversationStore.
func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]datatypes.StoredMessage, error) {
	ctx, span := storeTracer.Start(ctx, "MongoStore.ListMessages")
	defer span.End()

	cursor, err := s.messages.Find(ctx,
		bson.M{"conversationId": conversationID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]datatypes.StoredMessage, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

// IncrementStats implements ConversationStore. The whole update is one
// document-atomic $inc/$set, so concurrent turns never lose counts.
func (s *MongoStore) IncrementStats(ctx context.Context, conversationID string, delta int, lastMessageAt time.Time) error {
	ctx, span := storeTracer.Start(ctx, "MongoStore.IncrementStats")
	defer span.End()

	_, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{
			"$inc": bson.M{"messageCount": delta},
			"$set": bson.M{"lastMessageAt": lastMessageAt, "updatedAt": lastMessageAt},
		},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("increment conversation stats: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ ConversationStore = (*MongoStore)(nil)
