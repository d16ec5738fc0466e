package telegram

import (
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagate/pkg/wire"
)

func baseMessage() *telego.Message {
	return &telego.Message{
		MessageID: 42,
		Date:      1700000000,
		Chat:      telego.Chat{ID: 12345},
		From:      &telego.User{ID: 777, FirstName: "Ada"},
	}
}

func TestTranslateTextMessage(t *testing.T) {
	msg := baseMessage()
	msg.Text = "hello gateway"

	got := translateMessage(msg, 999)
	require.NotNil(t, got)

	assert.Equal(t, "12345", got.Key.RemoteID)
	assert.Equal(t, "42", got.Key.ID)
	assert.False(t, got.Key.FromMe)
	assert.Equal(t, "Ada", got.PushName)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got.Timestamp)
	assert.Equal(t, "hello gateway", got.Content.Conversation)
}

func TestTranslateVoiceMessage(t *testing.T) {
	msg := baseMessage()
	msg.Voice = &telego.Voice{FileID: "voice-file", Duration: 9, FileSize: 2048}

	got := translateMessage(msg, 999)
	require.NotNil(t, got)
	require.NotNil(t, got.Content.Audio)

	assert.True(t, got.Content.Audio.Voice)
	assert.Equal(t, 9, got.Content.Audio.Seconds)
	assert.Equal(t, "audio/ogg", got.Content.Audio.MimeType, "missing MIME defaults to ogg")
	assert.Equal(t, "voice-file", got.Content.Audio.Ref.ID)
	assert.Equal(t, int64(2048), got.Content.Audio.Ref.Size)
}

func TestTranslateAudioFileIsNotVoice(t *testing.T) {
	msg := baseMessage()
	msg.Audio = &telego.Audio{FileID: "song", Duration: 180, MimeType: "audio/mpeg"}

	got := translateMessage(msg, 999)
	require.NotNil(t, got.Content.Audio)
	assert.False(t, got.Content.Audio.Voice)
	assert.Equal(t, "audio/mpeg", got.Content.Audio.MimeType)
}

func TestTranslateDocumentWithCaption(t *testing.T) {
	msg := baseMessage()
	msg.Document = &telego.Document{FileID: "doc", FileName: "notes.pdf", MimeType: "application/pdf"}
	msg.Caption = "read this"

	got := translateMessage(msg, 999)
	require.NotNil(t, got.Content.Document)
	assert.Equal(t, "notes.pdf", got.Content.Document.FileName)
	assert.Equal(t, "read this", got.Content.Document.Caption)
}

func TestTranslatePhotoPicksLargestRendition(t *testing.T) {
	msg := baseMessage()
	msg.Photo = []telego.PhotoSize{
		{FileID: "small", Width: 90},
		{FileID: "large", Width: 1280},
	}
	msg.Caption = "sunset"

	got := translateMessage(msg, 999)
	require.NotNil(t, got.Content.Image)
	assert.Equal(t, "large", got.Content.Image.Ref.ID)
	assert.Equal(t, "sunset", got.Content.Image.Caption)
}

func TestTranslateSelfMessage(t *testing.T) {
	msg := baseMessage()
	msg.Text = "echo"
	msg.From.ID = 999

	got := translateMessage(msg, 999)
	assert.True(t, got.Key.FromMe)
}

func TestTranslateReaction(t *testing.T) {
	got := translateReaction(&telego.MessageReactionUpdated{
		Chat:      telego.Chat{ID: 12345},
		MessageID: 42,
		Date:      1700000000,
		User:      &telego.User{ID: 777, FirstName: "Ada"},
		NewReaction: []telego.ReactionType{
			&telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: "🔥"},
		},
	})
	require.NotNil(t, got)
	require.NotNil(t, got.Content.Reaction)

	assert.Equal(t, "🔥", got.Content.Reaction.Emoji)
	assert.Equal(t, "42", got.Content.Reaction.Target.ID)
	assert.Equal(t, "12345", got.Content.Reaction.Target.RemoteID)
}

func TestTranslateReactionRemovalDropped(t *testing.T) {
	got := translateReaction(&telego.MessageReactionUpdated{
		Chat:      telego.Chat{ID: 12345},
		MessageID: 42,
	})
	assert.Nil(t, got, "cleared reactions carry no emoji to forward")
}

func TestChatID(t *testing.T) {
	id, err := chatID(" 123 ")
	require.NoError(t, err)
	assert.Equal(t, int64(123), id.ID)

	id, err = chatID("@channelname")
	require.NoError(t, err)
	assert.Equal(t, "@channelname", id.Username)

	_, err = chatID("not-a-chat")
	assert.Error(t, err)

	_, err = chatID("")
	assert.Error(t, err)
}

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	assert.Len(t, allowed, 2)
	assert.Contains(t, allowed, "123")
	assert.Contains(t, allowed, "456")

	assert.Nil(t, allowFromSet(nil))
	assert.Nil(t, allowFromSet([]string{" ", ""}))
}

func TestSenderAllowed(t *testing.T) {
	conn := &Conn{allowFrom: map[string]struct{}{"777": {}}}
	assert.True(t, conn.senderAllowed(&telego.User{ID: 777}))
	assert.False(t, conn.senderAllowed(&telego.User{ID: 1}))
	assert.False(t, conn.senderAllowed(nil))

	conn.allowFrom = nil
	assert.True(t, conn.senderAllowed(&telego.User{ID: 1}))
}

func TestInputFileRequiresPayload(t *testing.T) {
	_, err := inputFile(wire.OutboundMedia{})
	assert.Error(t, err)

	file, err := inputFile(wire.OutboundMedia{Data: []byte("x"), FileName: "v.ogg"})
	require.NoError(t, err)
	assert.NotNil(t, file.File)

	file, err = inputFile(wire.OutboundMedia{URL: "https://example.com/a.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.mp3", file.URL)
}