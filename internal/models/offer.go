package models

import "time"

// PlaceholderMap maps a placeholder token such as "[LINK_0]" to the final URL.
// A nil value means the link was intentionally dropped and the placeholder
// must be removed from the published text.
type PlaceholderMap map[string]*string

// InlineButton is a single button of a reply markup
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// ReplyMarkup is an optional inline keyboard attached to a published message
type ReplyMarkup struct {
	Rows [][]InlineButton `json:"rows"`
}

// QueuedOffer is a ready-to-publish offer
type QueuedOffer struct {
	Text        string       `json:"text"`
	MediaPath   string       `json:"media_path,omitempty"`
	ReplyMarkup *ReplyMarkup `json:"reply_markup,omitempty"`
	SourceURL   string       `json:"source_url,omitempty"`

	// Signature checked by the dedup gate, recorded once publishing succeeds
	DedupTitle string `json:"dedup_title"`
	DedupPrice string `json:"dedup_price"`
}

// OfferStatus is the lifecycle state of a stored offer
type OfferStatus string

const (
	OfferStatusPending OfferStatus = "pending"
	OfferStatusDone    OfferStatus = "done"
)

// Offer is a QueuedOffer persisted while it waits for manual approval
type Offer struct {
	ID        string      `json:"id"`
	Offer     QueuedOffer `json:"offer"`
	Status    OfferStatus `json:"status" badgerhold:"index"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// HistoryEntry is the signature of a published offer
type HistoryEntry struct {
	ID       string    `json:"id"`
	Title    string    `json:"title" badgerhold:"index"`
	Price    string    `json:"price"`
	PostedAt time.Time `json:"posted_at"`
}

// PublishedPost is the final text of a post sent to the destination channel,
// kept for the fuzzy duplicate check
type PublishedPost struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Price    string    `json:"price"`
	PostURL  string    `json:"post_url,omitempty"`
	PostedAt time.Time `json:"posted_at"`
}

// IncomingMessage is a raw post observed on a source channel
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	GroupID   int64  `json:"group_id,omitempty"` // album id, 0 when the message is standalone
	Channel   string `json:"channel"`            // "@username" or numeric chat id
	Text      string `json:"text"`
	MediaPath string `json:"media_path,omitempty"`
	ExtraLink string `json:"extra_link,omitempty"`
}

// OutcomeStatus describes what the pipeline did with a message
type OutcomeStatus string

const (
	OutcomeQueued    OutcomeStatus = "queued"
	OutcomePending   OutcomeStatus = "pending_approval"
	OutcomeDuplicate OutcomeStatus = "duplicate"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome is the result of handling one incoming message
type Outcome struct {
	Status  OutcomeStatus  `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	OfferID string         `json:"offer_id,omitempty"`
	Text    string         `json:"text,omitempty"`
	Links   PlaceholderMap `json:"links,omitempty"`
}
