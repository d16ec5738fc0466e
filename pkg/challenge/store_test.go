package challenge

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagate/pkg/config"
)

func validChallenge() *Challenge {
	return &Challenge{
		CourseID:         7,
		Type:             "grammar",
		Title:            "The unyielding verb",
		ShortDescription: "Complete the sentence with the correct tense.",
		ProblemText:      "I ____ to school yesterday.",
	}
}

func TestValidateAcceptsMinimalChallenge(t *testing.T) {
	assert.NoError(t, Validate(validChallenge()))
}

func TestValidateRequiredFields(t *testing.T) {
	mutations := map[string]func(*Challenge){
		"course_id":         func(c *Challenge) { c.CourseID = 0 },
		"type":              func(c *Challenge) { c.Type = " " },
		"title":             func(c *Challenge) { c.Title = "" },
		"short_description": func(c *Challenge) { c.ShortDescription = "" },
		"problem_text":      func(c *Challenge) { c.ProblemText = "" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			input := validChallenge()
			mutate(input)
			assert.ErrorIs(t, Validate(input), ErrValidation)
		})
	}
}

func TestValidateLengthBounds(t *testing.T) {
	input := validChallenge()
	input.Title = strings.Repeat("x", 41)
	assert.ErrorIs(t, Validate(input), ErrValidation)

	input = validChallenge()
	input.AnswerText = strings.Repeat("x", 513)
	assert.ErrorIs(t, Validate(input), ErrValidation)
}

func TestValidateNilPayload(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrValidation)
}

func TestDecodeBlob(t *testing.T) {
	raw := []byte("audio bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	data, err := DecodeBlob(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, data)

	data, err = DecodeBlob("data:audio/ogg;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, data)

	data, err = DecodeBlob("  ")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = DecodeBlob("not/base64!!!")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewStoreDisabled(t *testing.T) {
	store, err := NewStore(config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(config.DatabaseConfig{Enabled: true})
	assert.Error(t, err)
}
