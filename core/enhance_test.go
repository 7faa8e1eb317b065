package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhanceRetriesAcrossKeys(t *testing.T) {
	e := NewEnhancer(NewKeyring([]string{"bad", "good"}), "")

	var used []string
	e.generate = func(_ context.Context, apiKey, prompt string, image []byte, mimeType string) (string, error) {
		used = append(used, apiKey)
		if apiKey == "bad" {
			return "", errors.New("quota exceeded")
		}
		return "Here you go:\n{\"animation_prompt\":\"slow zoom\",\"negative_prompt\":\"blurry\"}", nil
	}

	result, err := e.Enhance(context.Background(), []byte{0xff}, "image/png", "zoom in")
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "good"}, used)
	assert.Equal(t, "slow zoom", result.AnimationPrompt)
	assert.Equal(t, "blurry", result.NegativePrompt)
}

func TestEnhanceUnusableOutputCountsAsFailure(t *testing.T) {
	e := NewEnhancer(NewKeyring([]string{"k1", "k2"}), "")
	calls := 0
	e.generate = func(_ context.Context, _, _ string, _ []byte, _ string) (string, error) {
		calls++
		if calls == 1 {
			return "sorry, I cannot help with that", nil
		}
		return "{\"animation_prompt\":\"gentle parallax\",\"negative_prompt\":\"jittery\"}", nil
	}

	result, err := e.Enhance(context.Background(), nil, "image/jpeg", "")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "gentle parallax", result.AnimationPrompt)
}

func TestEnhanceExhaustsPool(t *testing.T) {
	e := NewEnhancer(NewKeyring([]string{"k1", "k2", "k3"}), "")
	calls := 0
	e.generate = func(_ context.Context, _, _ string, _ []byte, _ string) (string, error) {
		calls++
		return "", errors.New("unavailable")
	}

	_, err := e.Enhance(context.Background(), nil, "image/png", "x")
	assert.ErrorIs(t, err, ErrKeysExhausted)
	assert.Equal(t, 3, calls, "one attempt per key, then stop")
}

func TestEnhanceNoKeys(t *testing.T) {
	e := NewEnhancer(NewKeyring(nil), "")
	_, err := e.Enhance(context.Background(), nil, "image/png", "x")
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestParsePlannerResponse(t *testing.T) {
	t.Run("markdown fenced", func(t *testing.T) {
		out := "```json\n{\"animation_prompt\":\"a\",\"negative_prompt\":\"b\"}\n```"
		result, err := parsePlannerResponse(out)
		require.NoError(t, err)
		assert.Equal(t, "a", result.AnimationPrompt)
	})

	t.Run("missing animation_prompt", func(t *testing.T) {
		_, err := parsePlannerResponse("{\"negative_prompt\":\"b\"}")
		assert.Error(t, err)
	})

	t.Run("no json object", func(t *testing.T) {
		_, err := parsePlannerResponse("plain refusal text")
		assert.Error(t, err)
	})
}

func TestPlannerPromptDefaultsIdea(t *testing.T) {
	withIdea := plannerPrompt("clouds moving")
	assert.Contains(t, withIdea, "clouds moving")

	empty := plannerPrompt("  ")
	assert.NotContains(t, empty, "\"  \"")
	assert.Contains(t, empty, "animation_prompt")
}
