package domain

// Direction of a stored message. Values follow the telephony inbox/sent types.
type Direction int

const (
	DirectionInbound  Direction = 1
	DirectionOutbound Direction = 2
)

// Participant is one party of a conversation as shown to the user.
type Participant struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

// Message is the persisted unit. ID is assigned by the store on insert and
// never changes afterwards.
type Message struct {
	ID             int64         `json:"id"`
	Body           string        `json:"body"`
	Direction      Direction     `json:"direction"`
	Status         int           `json:"status"`
	Participants   []Participant `json:"participants"`
	Date           int64         `json:"date"` // seconds since epoch
	Read           bool          `json:"read"`
	ThreadID       int64         `json:"thread_id"`
	Locked         bool          `json:"locked"`
	Attachment     string        `json:"attachment,omitempty"`
	SenderAddress  string        `json:"sender_address"`
	SenderName     string        `json:"sender_name"`
	SenderPhotoRef string        `json:"sender_photo_ref,omitempty"`
	SubscriptionID int           `json:"subscription_id"`
}

// Conversation is the per-thread summary. Every stored message belongs to
// exactly one conversation, keyed by ThreadID.
type Conversation struct {
	ThreadID int64  `json:"thread_id"`
	Snippet  string `json:"snippet"`
	Date     int64  `json:"date"` // seconds since epoch of the last activity
	Read     bool   `json:"read"`
	Title    string `json:"title"`
	PhotoRef string `json:"photo_ref,omitempty"`
	Address  string `json:"address"`
	Archived bool   `json:"archived"`
}
