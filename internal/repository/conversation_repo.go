package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dayal123456/Lumico-ai/internal/model/chat"
)

// ConversationRepo 对话仓库
// 消息列表整体覆盖写入：对话体量小、写入低频，全量快照是最简单的正确策略
type ConversationRepo struct {
	collection *mongo.Collection
}

// NewConversationRepo 创建对话仓库
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		collection: db.Collection("conversations"),
	}
}

// Create 创建对话，返回生成的ID
func (r *ConversationRepo) Create(ctx context.Context, conv *chat.Conversation) error {
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = time.Now()
	if conv.Title == "" {
		conv.Title = chat.DefaultTitle
	}
	if conv.Messages == nil {
		conv.Messages = []chat.StoredMessage{}
	}

	result, err := r.collection.InsertOne(ctx, conv)
	if err != nil {
		return err
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conv.ID = oid
	}
	return nil
}

// FindByID 根据 ID 查询（校验归属用户）
func (r *ConversationRepo) FindByID(ctx context.Context, userID, id string) (*chat.Conversation, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var conv chat.Conversation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID, "user_id": userID}).Decode(&conv)
	if err != nil {
		return nil, err
	}

	return &conv, nil
}

// ReplaceMessages 全量覆盖消息快照
func (r *ConversationRepo) ReplaceMessages(ctx context.Context, id string, msgs []chat.StoredMessage) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"messages":   msgs,
			"updated_at": time.Now(),
		},
	}

	_, err = r.collection.UpdateByID(ctx, objectID, update)
	return err
}

// UpdateTitle 更新对话标题
func (r *ConversationRepo) UpdateTitle(ctx context.Context, id, title string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"title":      title,
			"updated_at": time.Now(),
		},
	}

	_, err = r.collection.UpdateByID(ctx, objectID, update)
	return err
}

// ListByUserID 查询用户对话列表（不含消息体，按更新时间倒序）
func (r *ConversationRepo) ListByUserID(ctx context.Context, userID string, limit, offset int64) ([]*chat.Summary, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "updated_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset).
		SetProjection(bson.M{"messages": 0})

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var summaries []*chat.Summary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}

	return summaries, nil
}

// Delete 删除对话（校验归属用户）
func (r *ConversationRepo) Delete(ctx context.Context, userID, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": objectID, "user_id": userID})
	return err
}
