package chat

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// AttachmentType 附件类型
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image" // base64 data URL
	AttachmentFile  AttachmentType = "file"  // 提取出的纯文本
)

// Attachment 消息附件
// 图片附件的 Content 是 base64 data URL，其余类型是提取出的纯文本
type Attachment struct {
	Type    AttachmentType `bson:"type" json:"type"`
	Name    string         `bson:"name" json:"name"`
	Content string         `bson:"content" json:"content"`
}

// Message 对话中的一条消息
// AudioURL 与 Generating 是 UI 瞬态字段，持久化时剥离
type Message struct {
	ID         string      `json:"id"`
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	Thinking   string      `json:"thinking,omitempty"`
	ModelName  string      `json:"modelName,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	AudioURL   string      `json:"audioUrl,omitempty"`
	Generating bool        `json:"isGenerating,omitempty"`
}

// StoredMessage 持久化的消息形态
// 可选字段不带 omitempty：缺失值落库为显式 null，
// 保证所有对话的记录结构一致
type StoredMessage struct {
	ID         string      `bson:"id" json:"id"`
	Role       string      `bson:"role" json:"role"`
	Content    string      `bson:"content" json:"content"`
	Thinking   *string     `bson:"thinking" json:"thinking"`
	ModelName  *string     `bson:"model_name" json:"modelName"`
	Attachment *Attachment `bson:"attachment" json:"attachment"`
	ImageURL   *string     `bson:"image_url" json:"imageUrl"`
}

// Stored 转换为持久化形态
func (m Message) Stored() StoredMessage {
	s := StoredMessage{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Content,
		Attachment: m.Attachment,
	}
	if m.Thinking != "" {
		s.Thinking = &m.Thinking
	}
	if m.ModelName != "" {
		s.ModelName = &m.ModelName
	}
	if m.ImageURL != "" {
		s.ImageURL = &m.ImageURL
	}
	return s
}

// Runtime 从持久化形态还原为运行时消息
func (s StoredMessage) Runtime() Message {
	m := Message{
		ID:         s.ID,
		Role:       s.Role,
		Content:    s.Content,
		Attachment: s.Attachment,
	}
	if s.Thinking != nil {
		m.Thinking = *s.Thinking
	}
	if s.ModelName != nil {
		m.ModelName = *s.ModelName
	}
	if s.ImageURL != nil {
		m.ImageURL = *s.ImageURL
	}
	return m
}

// CleanMessages 批量转换为持久化形态，剥离瞬态字段
func CleanMessages(msgs []Message) []StoredMessage {
	out := make([]StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Stored())
	}
	return out
}

// RuntimeMessages 批量还原为运行时消息
func RuntimeMessages(stored []StoredMessage) []Message {
	out := make([]Message, 0, len(stored))
	for _, s := range stored {
		out = append(out, s.Runtime())
	}
	return out
}

// CountUserMessages 统计 user 角色消息数（标题生成节奏依赖它）
func CountUserMessages(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastUserMessage 返回最后一条 user 消息，没有时返回 nil
func LastUserMessage(msgs []Message) *Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return &msgs[i]
		}
	}
	return nil
}
