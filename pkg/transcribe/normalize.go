package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"wagate/pkg/config"
)

// ErrNormalization marks an ffmpeg pre-processing failure. Callers decide
// whether to fall back to the raw payload or fail the message.
var ErrNormalization = errors.New("audio normalization failed")

// loudnormFilter matches broadcast loudness targets; voice notes recorded
// at wildly different levels come out comparable.
const loudnormFilter = "loudnorm=I=-16:LRA=11:TP=-1.5"

// Normalizer converts arbitrary inbound audio to normalized mono WAV via
// ffmpeg, piping through memory without temp files.
type Normalizer struct {
	binary     string
	sampleRate int
}

// NewNormalizer builds a normalizer from config. Returns nil when the
// pre-processing step is disabled.
func NewNormalizer(cfg config.NormalizeConfig) *Normalizer {
	if !cfg.Enabled {
		return nil
	}

	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	return &Normalizer{binary: binary, sampleRate: sampleRate}
}

// Normalize runs the input through ffmpeg and returns a mono 16-bit WAV at
// the configured sample rate. Any failure wraps ErrNormalization.
func (n *Normalizer) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrNormalization)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", strconv.Itoa(n.sampleRate),
		"-c:a", "pcm_s16le",
		"-af", loudnormFilter,
		"-f", "wav",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, n.binary, args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}

		return nil, fmt.Errorf("%w: %s", ErrNormalization, detail)
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrNormalization)
	}

	return stdout.Bytes(), nil
}
