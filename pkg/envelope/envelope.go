// Package envelope reduces raw inbound messages to their innermost payload
// and a classified content variant. Downstream code switches over the
// variant types instead of probing optional fields.
package envelope

import (
	"strings"

	"wagate/pkg/wire"
)

// maxUnwrapDepth bounds wrapper peeling so malformed or cyclic input cannot
// loop forever.
const maxUnwrapDepth = 5

// Kind is the coarse content category carried on normalized records.
type Kind string

const (
	KindText        Kind = "text"
	KindAudio       Kind = "audio"
	KindReaction    Kind = "reaction"
	KindUnsupported Kind = "unsupported"
)

// Content is the classification result. Concrete variants: Text, Caption,
// Selection, Voice, AudioDocument, Reaction, Unsupported.
type Content interface {
	Kind() Kind
}

// Text is a plain or extended text body.
type Text struct {
	Body     string
	Extended bool
}

// Caption is text attached to an image, video, or document.
type Caption struct {
	MediaKind string
	Body      string
}

// Selection is a tapped button or picked list row.
type Selection struct {
	ID    string
	Label string
}

// Voice is a voice note or plain audio message.
type Voice struct {
	Audio *wire.Audio
}

// AudioDocument is a document attachment that may carry audio; the
// extractor decides based on the declared MIME type.
type AudioDocument struct {
	Document *wire.Document
}

// Reaction is an emoji reaction to a prior message.
type Reaction struct {
	Target wire.MessageKey
	Emoji  string
}

// Unsupported marks content kinds this gateway does not process. Noise is
// set when the message carried no body at all (receipts, key distribution);
// such messages are dropped instead of forwarded.
type Unsupported struct {
	Noise bool
}

func (Text) Kind() Kind          { return KindText }
func (Caption) Kind() Kind       { return KindText }
func (Selection) Kind() Kind     { return KindText }
func (Voice) Kind() Kind         { return KindAudio }
func (AudioDocument) Kind() Kind { return KindAudio }
func (Reaction) Kind() Kind      { return KindReaction }
func (Unsupported) Kind() Kind   { return KindUnsupported }

// Unwrap peels known wrapper envelopes (ephemeral and both view-once
// variants) until plain content remains. The loop is bounded by
// maxUnwrapDepth; deeper nesting returns whatever was reached.
func Unwrap(content *wire.Content) *wire.Content {
	for depth := 0; content != nil && depth < maxUnwrapDepth; depth++ {
		switch {
		case content.Ephemeral != nil:
			content = content.Ephemeral.Content
		case content.ViewOnce != nil:
			content = content.ViewOnce.Content
		case content.ViewOnceV2 != nil:
			content = content.ViewOnceV2.Content
		default:
			return content
		}
	}

	return content
}

// Classify unwraps a message and returns its content variant. It never
// fails: absent fields fall through to the next check, and a message with
// no body at all classifies as Unsupported.
func Classify(msg *wire.Message) Content {
	if msg == nil {
		return Unsupported{Noise: true}
	}

	content := Unwrap(msg.Content)
	if content == nil || *content == (wire.Content{}) {
		return Unsupported{Noise: true}
	}

	switch {
	case content.Conversation != "":
		return Text{Body: content.Conversation}

	case content.ExtendedText != nil && content.ExtendedText.Text != "":
		return Text{Body: content.ExtendedText.Text, Extended: true}

	case content.Image != nil && content.Image.Caption != "":
		return Caption{MediaKind: "image", Body: content.Image.Caption}

	case content.Video != nil && content.Video.Caption != "":
		return Caption{MediaKind: "video", Body: content.Video.Caption}

	case content.Document != nil && content.Document.Caption != "" && !audioMime(content.Document.MimeType):
		return Caption{MediaKind: "document", Body: content.Document.Caption}

	case content.Audio != nil:
		return Voice{Audio: content.Audio}

	case content.Document != nil:
		// Audio-bearing or unknown documents; the extractor applies the
		// MIME gate and reports "not audio" for the rest.
		return AudioDocument{Document: content.Document}

	case content.ButtonsResponse != nil:
		return Selection{ID: content.ButtonsResponse.SelectedID, Label: content.ButtonsResponse.DisplayText}

	case content.ListResponse != nil:
		return Selection{ID: content.ListResponse.RowID, Label: content.ListResponse.Title}

	case content.Reaction != nil:
		return Reaction{Target: content.Reaction.Target, Emoji: content.Reaction.Emoji}

	default:
		return Unsupported{}
	}
}

func audioMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio/")
}
