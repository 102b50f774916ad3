package domain

// Message is one turn in a chat. Messages are immutable once created.
type Message struct {
	ID            int64           `json:"id"`
	ChatID        int64           `json:"chatId"`
	Sender        string          `json:"sender"`
	Content       string          `json:"content"`
	IsUserMessage bool            `json:"isUserMessage"`
	Timestamp     Timestamp       `json:"timestamp"`
	Metrics       *MessageMetrics `json:"metrics,omitempty"`
}

// MessageMetrics records the listen/think/speak phase timings of an
// agent turn.
type MessageMetrics struct {
	ListenTimeMs          *int64    `json:"listenTimeMs,omitempty"`
	ThinkTimeMs           *int64    `json:"thinkTimeMs,omitempty"`
	SpeakTimeMs           *int64    `json:"speakTimeMs,omitempty"`
	ListenSuccess         *bool     `json:"listenSuccess,omitempty"`
	ThinkSuccess          *bool     `json:"thinkSuccess,omitempty"`
	SpeakSuccess          *bool     `json:"speakSuccess,omitempty"`
	LastUpdated           Timestamp `json:"lastUpdated"`
	TotalProcessingTimeMs int64     `json:"totalProcessingTimeMs"`
}

// CreateMessageRequest posts a message into a chat.
type CreateMessageRequest struct {
	ChatID        int64  `json:"chatId"`
	Sender        string `json:"sender"`
	Content       string `json:"content"`
	IsUserMessage bool   `json:"isUserMessage"`
}
