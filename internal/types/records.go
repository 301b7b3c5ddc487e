package types

// SessionFact is the immutable metrics record emitted once per closed
// session. DateKey partitions facts per day for DynamoDB.
type SessionFact struct {
	DateKey              string  `json:"dateKey" dynamodbav:"DateKey"`     // YYYY-MM-DD (partition key)
	SessionID            string  `json:"sessionId" dynamodbav:"SessionID"` // sort key
	AgentID              string  `json:"agentId" dynamodbav:"AgentID"`
	Priority             string  `json:"priority" dynamodbav:"Priority"`
	CreatedAt            string  `json:"createdAt" dynamodbav:"CreatedAt"` // RFC3339
	ClosedAt             string  `json:"closedAt" dynamodbav:"ClosedAt"`   // RFC3339
	WaitTimeSeconds      float64 `json:"waitTimeSeconds" dynamodbav:"WaitTimeSeconds"`
	ResponseTimeSeconds  float64 `json:"responseTimeSeconds" dynamodbav:"ResponseTimeSeconds"`
	TotalDurationSeconds float64 `json:"totalDurationSeconds" dynamodbav:"TotalDurationSeconds"`
	MessageCount         int     `json:"messageCount" dynamodbav:"MessageCount"`
	Rating               int     `json:"rating" dynamodbav:"Rating"` // 0 = not rated
	Abandoned            bool    `json:"abandoned" dynamodbav:"Abandoned"`
}

// AgentDailyRollup aggregates one agent's closed sessions for one day
type AgentDailyRollup struct {
	AgentID                string  `json:"agentId" dynamodbav:"AgentID"` // partition key
	Date                   string  `json:"date" dynamodbav:"Date"`       // YYYY-MM-DD (sort key)
	TotalChats             int     `json:"totalChats" dynamodbav:"TotalChats"`
	TotalDurationSeconds   float64 `json:"totalDurationSeconds" dynamodbav:"TotalDurationSeconds"`
	AvgDurationSeconds     float64 `json:"avgDurationSeconds" dynamodbav:"AvgDurationSeconds"`
	AvgWaitTimeSeconds     float64 `json:"avgWaitTimeSeconds" dynamodbav:"AvgWaitTimeSeconds"`
	AvgResponseTimeSeconds float64 `json:"avgResponseTimeSeconds" dynamodbav:"AvgResponseTimeSeconds"`
	RatingsReceived        int     `json:"ratingsReceived" dynamodbav:"RatingsReceived"`
	AvgRating              float64 `json:"avgRating" dynamodbav:"AvgRating"`
	ChatsTransferredIn     int     `json:"chatsTransferredIn" dynamodbav:"ChatsTransferredIn"`
	ChatsTransferredOut    int     `json:"chatsTransferredOut" dynamodbav:"ChatsTransferredOut"`
}

// Transcript is the read-only archival snapshot built when a session
// closes. The core hands it to the archiver and never touches it again.
type Transcript struct {
	SessionID       string    `json:"sessionId" dynamodbav:"SessionID"` // partition key
	CustomerName    string    `json:"customerName" dynamodbav:"CustomerName"`
	CustomerEmail   string    `json:"customerEmail" dynamodbav:"CustomerEmail"`
	AgentID         string    `json:"agentId" dynamodbav:"AgentID"`
	Messages        []Message `json:"messages" dynamodbav:"Messages"`
	TotalMessages   int       `json:"totalMessages" dynamodbav:"TotalMessages"`
	DurationSeconds float64   `json:"durationSeconds" dynamodbav:"DurationSeconds"`
	Rating          int       `json:"rating" dynamodbav:"Rating"`
	ChatStartedAt   string    `json:"chatStartedAt" dynamodbav:"ChatStartedAt"` // RFC3339
	ChatEndedAt     string    `json:"chatEndedAt" dynamodbav:"ChatEndedAt"`     // RFC3339
	ArchivedAt      string    `json:"archivedAt" dynamodbav:"ArchivedAt"`       // RFC3339
}
