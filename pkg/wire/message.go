package wire

import "time"

// MessageKey identifies one message within the network.
type MessageKey struct {
	RemoteID string `json:"remote_id"`
	ID       string `json:"id"`
	FromMe   bool   `json:"from_me"`
}

// Message is one raw inbound message as delivered by the transport. Content
// may be nil for pure protocol noise (receipts, key distribution).
type Message struct {
	Key       MessageKey
	PushName  string
	Timestamp time.Time
	Content   *Content
}

// Content is the possibly wrapped message body. At most one field is set
// for well-formed messages; classification tolerates anything else.
type Content struct {
	Conversation    string
	ExtendedText    *ExtendedText
	Image           *Media
	Video           *Media
	Document        *Document
	Audio           *Audio
	ButtonsResponse *ButtonsResponse
	ListResponse    *ListResponse
	Reaction        *Reaction

	// Wrapper envelopes. Two historical view-once variants exist on the
	// network; both carry the same shape.
	Ephemeral  *Wrapped
	ViewOnce   *Wrapped
	ViewOnceV2 *Wrapped
}

// Wrapped is an envelope layer around inner content.
type Wrapped struct {
	Content *Content
}

// ExtendedText is text with link/quote metadata attached.
type ExtendedText struct {
	Text         string
	Title        string
	Description  string
	CanonicalURL string
}

// Media is an image or video payload.
type Media struct {
	Caption  string
	MimeType string
	Ref      *MediaRef
}

// Document is a file attachment. Audio-bearing documents (MIME prefixed
// "audio/") enter the transcription pipeline.
type Document struct {
	FileName string
	MimeType string
	Caption  string
	Ref      *MediaRef
}

// Audio is a voice note or audio attachment.
type Audio struct {
	MimeType string
	Seconds  int
	Voice    bool
	Ref      *MediaRef
}

// ButtonsResponse is a tapped button reply.
type ButtonsResponse struct {
	SelectedID  string
	DisplayText string
}

// ListResponse is a selected list row.
type ListResponse struct {
	RowID string
	Title string
}

// Reaction is an emoji reaction to a prior message.
type Reaction struct {
	Target MessageKey
	Emoji  string
}

// MediaRef is an opaque handle to downloadable content. ID is the
// transport's own key; the remaining fields are advisory.
type MediaRef struct {
	ID   string
	URL  string
	Size int64
}
