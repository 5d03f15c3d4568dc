package domain

import "time"

// WorkItem is one unit of async work handed to the execution tier.
type WorkItem struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	ChannelID   string `json:"channel_id"`
	Text        string `json:"text"`
	ResponseURL string `json:"response_url,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
}

// DispatchTicket carries the short-lived identity token the execution tier
// uses to verify the callback's origin. Minted fresh per dispatch, never
// cached across tasks.
type DispatchTicket struct {
	IdentityToken string
	Audience      string
	IssuedAt      time.Time
}

// TaskHandle identifies an enqueued task for logging and correlation only;
// the queue does not expose real-time task status.
type TaskHandle struct {
	ID          string
	QueuePath   string
	ScheduledAt time.Time
}
