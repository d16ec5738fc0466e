package telegram

import (
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"wagate/pkg/wire"
)

// translateMessage maps one Telegram message onto the wire envelope. At
// most one content field ends up set, matching what classification expects.
func translateMessage(msg *telego.Message, selfID int64) *wire.Message {
	if msg == nil {
		return nil
	}

	content := &wire.Content{}

	switch {
	case msg.Text != "":
		content.Conversation = msg.Text

	case msg.Voice != nil:
		mimeType := msg.Voice.MimeType
		if mimeType == "" {
			mimeType = "audio/ogg"
		}
		content.Audio = &wire.Audio{
			MimeType: mimeType,
			Seconds:  msg.Voice.Duration,
			Voice:    true,
			Ref:      &wire.MediaRef{ID: msg.Voice.FileID, Size: int64(msg.Voice.FileSize)},
		}

	case msg.Audio != nil:
		content.Audio = &wire.Audio{
			MimeType: msg.Audio.MimeType,
			Seconds:  msg.Audio.Duration,
			Ref:      &wire.MediaRef{ID: msg.Audio.FileID, Size: int64(msg.Audio.FileSize)},
		}

	case msg.Document != nil:
		content.Document = &wire.Document{
			FileName: msg.Document.FileName,
			MimeType: msg.Document.MimeType,
			Caption:  msg.Caption,
			Ref:      &wire.MediaRef{ID: msg.Document.FileID, Size: int64(msg.Document.FileSize)},
		}

	case len(msg.Photo) > 0:
		// Telegram lists photo renditions smallest first.
		largest := msg.Photo[len(msg.Photo)-1]
		content.Image = &wire.Media{
			Caption: msg.Caption,
			Ref:     &wire.MediaRef{ID: largest.FileID, Size: int64(largest.FileSize)},
		}

	case msg.Video != nil:
		content.Video = &wire.Media{
			Caption:  msg.Caption,
			MimeType: msg.Video.MimeType,
			Ref:      &wire.MediaRef{ID: msg.Video.FileID, Size: int64(msg.Video.FileSize)},
		}
	}

	var pushName string
	fromMe := false
	if msg.From != nil {
		pushName = msg.From.FirstName
		fromMe = msg.From.ID == selfID
	}

	return &wire.Message{
		Key: wire.MessageKey{
			RemoteID: strconv.FormatInt(msg.Chat.ID, 10),
			ID:       strconv.Itoa(msg.MessageID),
			FromMe:   fromMe,
		},
		PushName:  pushName,
		Timestamp: time.Unix(msg.Date, 0).UTC(),
		Content:   content,
	}
}

// translateReaction maps a reaction update. Only the newest emoji reaction
// is carried; Telegram reports the full reaction set per update.
func translateReaction(reaction *telego.MessageReactionUpdated) *wire.Message {
	if reaction == nil || len(reaction.NewReaction) == 0 {
		return nil
	}

	emoji := ""
	for _, entry := range reaction.NewReaction {
		if typed, ok := entry.(*telego.ReactionTypeEmoji); ok {
			emoji = typed.Emoji
		}
	}
	if emoji == "" {
		return nil
	}

	targetID := strconv.Itoa(reaction.MessageID)
	remoteID := strconv.FormatInt(reaction.Chat.ID, 10)

	var pushName string
	if reaction.User != nil {
		pushName = reaction.User.FirstName
	}

	return &wire.Message{
		Key: wire.MessageKey{
			RemoteID: remoteID,
			// Reaction updates carry no message id of their own; derive a
			// stable synthetic one from the target.
			ID: "reaction-" + targetID,
		},
		PushName:  pushName,
		Timestamp: time.Unix(reaction.Date, 0).UTC(),
		Content: &wire.Content{
			Reaction: &wire.Reaction{
				Target: wire.MessageKey{RemoteID: remoteID, ID: targetID},
				Emoji:  emoji,
			},
		},
	}
}
