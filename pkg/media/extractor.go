// Package media turns media references on inbound messages into raw byte
// payloads ready for the transcription pipeline, and reads local files for
// outbound sends.
package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"wagate/pkg/wire"
)

// DefaultAudioMimeType is assumed when a voice note arrives without a
// declared MIME type.
const DefaultAudioMimeType = "audio/ogg; codecs=opus"

// Downloader fetches the payload behind a media reference. Satisfied by
// wire.Conn and by the session manager.
type Downloader interface {
	Download(ctx context.Context, ref *wire.MediaRef) (io.ReadCloser, error)
}

// Artifact is a fully materialized audio payload.
type Artifact struct {
	Data     []byte
	MimeType string
	FileName string
	Seconds  int
	Voice    bool
}

// Extractor downloads and bounds audio payloads.
type Extractor struct {
	downloader Downloader
	maxBytes   int64
}

// NewExtractor builds an extractor. maxBytes bounds the accumulated
// payload; zero or negative disables the bound.
func NewExtractor(downloader Downloader, maxBytes int64) (*Extractor, error) {
	if downloader == nil {
		return nil, fmt.Errorf("downloader is required")
	}

	return &Extractor{downloader: downloader, maxBytes: maxBytes}, nil
}

// ExtractVoice materializes a voice note or plain audio message.
func (e *Extractor) ExtractVoice(ctx context.Context, audio *wire.Audio) (*Artifact, error) {
	if audio == nil || audio.Ref == nil {
		return nil, NewError(ErrorDownload, "audio message has no media reference")
	}

	mimeType := audio.MimeType
	if strings.TrimSpace(mimeType) == "" {
		mimeType = DefaultAudioMimeType
	}

	data, err := e.fetch(ctx, audio.Ref)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Data:     data,
		MimeType: mimeType,
		FileName: syntheticFileName(mimeType),
		Seconds:  audio.Seconds,
		Voice:    audio.Voice,
	}, nil
}

// ExtractAudioDocument materializes a document attachment when its declared
// MIME type is audio. Non-audio documents return (nil, nil): not an error,
// just not ours.
func (e *Extractor) ExtractAudioDocument(ctx context.Context, doc *wire.Document) (*Artifact, error) {
	if doc == nil {
		return nil, nil
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(doc.MimeType)), "audio/") {
		return nil, nil
	}
	if doc.Ref == nil {
		return nil, NewError(ErrorDownload, "audio document has no media reference")
	}

	data, err := e.fetch(ctx, doc.Ref)
	if err != nil {
		return nil, err
	}

	fileName := doc.FileName
	if strings.TrimSpace(fileName) == "" {
		fileName = syntheticFileName(doc.MimeType)
	}

	return &Artifact{
		Data:     data,
		MimeType: doc.MimeType,
		FileName: fileName,
	}, nil
}

// fetch streams the reference into memory, enforcing the size bound while
// reading rather than after.
func (e *Extractor) fetch(ctx context.Context, ref *wire.MediaRef) ([]byte, error) {
	if e.maxBytes > 0 && ref.Size > e.maxBytes {
		return nil, NewError(ErrorTooLarge, fmt.Sprintf("declared size %d exceeds limit %d", ref.Size, e.maxBytes))
	}

	stream, err := e.downloader.Download(ctx, ref)
	if err != nil {
		return nil, NewError(ErrorDownload, err.Error())
	}
	defer stream.Close()

	reader := io.Reader(stream)
	if e.maxBytes > 0 {
		reader = io.LimitReader(stream, e.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewError(ErrorDownload, err.Error())
	}
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return nil, NewError(ErrorTooLarge, fmt.Sprintf("payload exceeds limit %d", e.maxBytes))
	}

	return data, nil
}

// syntheticFileName invents a name for payloads that arrive without one.
// Some speech backends key format detection off the extension.
func syntheticFileName(mimeType string) string {
	return uuid.NewString() + extensionFor(mimeType)
}

func extensionFor(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch base {
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	case "audio/webm":
		return ".webm"
	case "audio/flac":
		return ".flac"
	default:
		return ".bin"
	}
}
