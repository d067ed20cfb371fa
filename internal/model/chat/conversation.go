package chat

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultTitle 新建对话的默认标题
const DefaultTitle = "New Chat"

// Conversation 对话实体
// ID 在第一次持久化写入时生成，此后保持稳定
type Conversation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Title     string             `bson:"title" json:"title"`
	Messages  []StoredMessage    `bson:"messages" json:"messages"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Summary 对话摘要（历史列表项，不含消息体）
type Summary struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Title     string             `bson:"title" json:"title"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
