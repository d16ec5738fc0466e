// Package ingest drains message batches off the bus, classifies each
// message, runs audio through the transcription pipeline, and forwards
// normalized records downstream in arrival order.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wagate/pkg/bus"
	"wagate/pkg/envelope"
	"wagate/pkg/forward"
	"wagate/pkg/media"
	"wagate/pkg/transcribe"
	"wagate/pkg/wire"
)

// Transcriber is the transcription seam; satisfied by transcribe.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, artifact *media.Artifact) (*transcribe.Result, error)
}

// Assessor is the optional pronunciation-scoring seam; satisfied by
// transcribe.Assessor.
type Assessor interface {
	Assess(ctx context.Context, result *transcribe.Result, tokens []transcribe.TokenSignal) (*transcribe.Assessment, error)
}

// Options tune dispatch policy.
type Options struct {
	// ProcessSelf opts in to handling self-originated messages. Off by
	// default: forwarding our own sends feeds the gateway its own output.
	ProcessSelf bool
}

// Dispatcher consumes batches and produces normalized records. Audio
// messages are processed concurrently within a batch, but records always
// leave in the order messages arrived.
type Dispatcher struct {
	bus         *bus.Bus
	extractor   *media.Extractor
	transcriber Transcriber
	assessor    Assessor
	sink        forward.Sink
	log         *slog.Logger
	opts        Options
}

// NewDispatcher wires the pipeline stages together. assessor may be nil.
func NewDispatcher(
	eventBus *bus.Bus,
	extractor *media.Extractor,
	transcriber Transcriber,
	assessor Assessor,
	sink forward.Sink,
	log *slog.Logger,
	opts Options,
) (*Dispatcher, error) {
	if eventBus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Dispatcher{
		bus:         eventBus,
		extractor:   extractor,
		transcriber: transcriber,
		assessor:    assessor,
		sink:        sink,
		log:         log.With("component", "ingest"),
		opts:        opts,
	}, nil
}

// Run consumes batches until the context is cancelled or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		batch, ok := d.bus.ConsumeBatch(ctx)
		if !ok {
			return nil
		}

		d.handleBatch(ctx, batch)
	}
}

// handleBatch fans audio work out and forwards results back in order. A
// failing message degrades to a record without transcript; it never stops
// its neighbors.
func (d *Dispatcher) handleBatch(ctx context.Context, batch wire.MessageBatch) {
	if len(batch.Messages) == 0 {
		return
	}
	if batch.Kind != wire.BatchNotify {
		d.log.Debug("skipping non-notify batch", "kind", string(batch.Kind), "messages", len(batch.Messages))
		return
	}

	slots := make([]chan *forward.Record, len(batch.Messages))
	for i, msg := range batch.Messages {
		slot := make(chan *forward.Record, 1)
		slots[i] = slot

		if msg == nil || (msg.Key.FromMe && !d.opts.ProcessSelf) {
			slot <- nil
			continue
		}

		content := envelope.Classify(msg)
		if audio, ok := content.(envelope.Voice); ok {
			go func(msg *wire.Message) {
				slot <- d.processVoice(ctx, msg, batch.ReceivedAt, audio)
			}(msg)
			continue
		}
		if doc, ok := content.(envelope.AudioDocument); ok {
			go func(msg *wire.Message) {
				slot <- d.processAudioDocument(ctx, msg, batch.ReceivedAt, doc)
			}(msg)
			continue
		}

		slot <- d.processInline(msg, batch.ReceivedAt, content)
	}

	for i, slot := range slots {
		record := <-slot
		if record == nil {
			continue
		}

		if err := d.sink.Forward(ctx, record); err != nil {
			d.log.Warn("record forwarding failed",
				"message_id", batch.Messages[i].Key.ID,
				"error", err,
			)
		}
	}
}

// processInline handles everything that needs no network work.
func (d *Dispatcher) processInline(msg *wire.Message, receivedAt time.Time, content envelope.Content) *forward.Record {
	record := d.baseRecord(msg, receivedAt, content.Kind())

	switch c := content.(type) {
	case envelope.Text:
		record.Text = c.Body
	case envelope.Caption:
		record.Text = c.Body
	case envelope.Selection:
		record.Text = c.Label
		if record.Text == "" {
			record.Text = c.ID
		}
	case envelope.Reaction:
		record.Emoji = c.Emoji
	case envelope.Unsupported:
		if c.Noise {
			// Pure protocol noise never reaches the sink.
			return nil
		}
		// Forwarded without a body so the consumer still sees the message.
	}

	return record
}

func (d *Dispatcher) processVoice(ctx context.Context, msg *wire.Message, receivedAt time.Time, content envelope.Voice) *forward.Record {
	artifact, err := d.extractor.ExtractVoice(ctx, content.Audio)
	if err != nil {
		return d.degraded(msg, receivedAt, err)
	}

	return d.transcribeArtifact(ctx, msg, receivedAt, artifact)
}

func (d *Dispatcher) processAudioDocument(ctx context.Context, msg *wire.Message, receivedAt time.Time, content envelope.AudioDocument) *forward.Record {
	artifact, err := d.extractor.ExtractAudioDocument(ctx, content.Document)

	var record *forward.Record
	switch {
	case err != nil:
		record = d.degraded(msg, receivedAt, err)
	case artifact == nil:
		// The MIME gate said this document carries no audio.
		record = d.baseRecord(msg, receivedAt, envelope.KindUnsupported)
	default:
		record = d.transcribeArtifact(ctx, msg, receivedAt, artifact)
	}

	// An audio document can carry a caption alongside its payload; the
	// caption ships with whatever the audio pipeline produced.
	record.Caption = content.Document.Caption

	return record
}

func (d *Dispatcher) transcribeArtifact(ctx context.Context, msg *wire.Message, receivedAt time.Time, artifact *media.Artifact) *forward.Record {
	result, err := d.transcriber.Transcribe(ctx, artifact)
	if err != nil {
		return d.degraded(msg, receivedAt, err)
	}

	record := d.baseRecord(msg, receivedAt, envelope.KindAudio)
	record.Text = result.Text
	record.Transcription = result

	if d.assessor != nil && result.Text != "" {
		assessment, err := d.assessor.Assess(ctx, result, result.Tokens)
		if err != nil {
			// Assessment is best effort; the transcript still ships.
			d.log.Warn("pronunciation assessment failed", "message_id", msg.Key.ID, "error", err)
		} else {
			record.Assessment = assessment
		}
	}

	return record
}

// degraded builds the record shipped when audio processing fails: no
// transcript, but the message and the failure category are preserved.
func (d *Dispatcher) degraded(msg *wire.Message, receivedAt time.Time, err error) *forward.Record {
	d.log.Warn("audio processing failed", "message_id", msg.Key.ID, "error", err)

	record := d.baseRecord(msg, receivedAt, envelope.KindAudio)
	record.Error = media.CategoryFromError(err)

	return record
}

func (d *Dispatcher) baseRecord(msg *wire.Message, receivedAt time.Time, kind envelope.Kind) *forward.Record {
	return &forward.Record{
		MessageID:  msg.Key.ID,
		RemoteID:   msg.Key.RemoteID,
		FromMe:     msg.Key.FromMe,
		PushName:   msg.PushName,
		Timestamp:  msg.Timestamp,
		ReceivedAt: receivedAt,
		Kind:       kind,
	}
}
