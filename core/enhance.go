package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

// EnhanceResult is the structured animation plan returned by the model.
type EnhanceResult struct {
	AnimationPrompt string `json:"animation_prompt"`
	NegativePrompt  string `json:"negative_prompt"`
}

// Enhancer turns a still image plus a free-text idea into an animation
// plan via Gemini. Each attempt takes the next credential from the
// keyring; one full rotation without a usable answer is the only
// terminal failure.
type Enhancer struct {
	keys  *Keyring
	model string

	// generate is swappable in tests.
	generate func(ctx context.Context, apiKey, prompt string, image []byte, mimeType string) (string, error)
}

func NewEnhancer(keys *Keyring, model string) *Enhancer {
	if model == "" {
		model = defaultGeminiModel
	}
	e := &Enhancer{keys: keys, model: model}
	e.generate = e.generateGemini
	return e
}

func (e *Enhancer) Enhance(ctx context.Context, image []byte, mimeType, idea string) (EnhanceResult, error) {
	if e.keys == nil || e.keys.Len() == 0 {
		return EnhanceResult{}, ErrNoKeys
	}

	prompt := plannerPrompt(idea)
	for attempt := 0; attempt < e.keys.Len(); attempt++ {
		key, idx := e.keys.Next()

		text, err := e.generate(ctx, key, prompt, image, mimeType)
		if err != nil {
			slog.Warn("enhancement attempt failed", "key_index", idx, "error", err)
			continue
		}
		result, err := parsePlannerResponse(text)
		if err != nil {
			slog.Warn("enhancement attempt returned unusable output", "key_index", idx, "error", err)
			continue
		}
		slog.Info("enhancement succeeded", "key_index", idx)
		return result, nil
	}

	slog.Error("CRITICAL: all API keys failed for enhancement request")
	return EnhanceResult{}, ErrKeysExhausted
}

func (e *Enhancer) generateGemini(ctx context.Context, apiKey, prompt string, image []byte, mimeType string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
		},
	}}

	resp, err := client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// parsePlannerResponse extracts the JSON object from the model output,
// which may be wrapped in prose or markdown fences.
func parsePlannerResponse(text string) (EnhanceResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return EnhanceResult{}, fmt.Errorf("no JSON object in model output")
	}

	var result EnhanceResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return EnhanceResult{}, fmt.Errorf("decode model output: %w", err)
	}
	if result.AnimationPrompt == "" {
		return EnhanceResult{}, fmt.Errorf("model output missing animation_prompt")
	}
	return result, nil
}

func plannerPrompt(idea string) string {
	if strings.TrimSpace(idea) == "" {
		idea = "این تصویر را به زیبایی و به صورت سینمایی متحرک کن"
	}
	return fmt.Sprintf(`
You are an expert AI Animation Planner. Your absolute highest priority is to faithfully and creatively execute the user's specific request. You are not just an artist; you are a technical problem solver.

**Input Analysis:**
1.  **Image Content:** A still image.
2.  **User's Idea (Persian):** "%s"

**CRITICAL Decision-Making Framework (Follow these steps PRECISELY):**

**Step 1: Analyze the User's Intent.**
*   Is the user's prompt empty or very generic (like "animate this")?
    *   If YES, proceed to **Mode A: Default Cinematic Enhancement**.
*   Does the user's prompt describe a specific action or effect (e.g., "clouds moving," "playing guitar," "slow zoom out")?
    *   If YES, proceed to **Mode B: User-Directed Animation**.

---

**Mode A: Default Cinematic Enhancement (Only when the user gives no specific direction)**
*   **Goal:** Add subtle, high-quality, believable motion to the image to bring it to life.
*   **Action:** Analyze the image for potential motion.
    *   **Landscapes:** Animate clouds, water, fog, light rays, gentle parallax effect.
    *   **Portraits:** Add subtle breathing, eye blinks, gentle hair movement from a breeze.
    *   **Objects:** Add subtle light reflections or environmental effects.
*   **Output:** Create an animation_prompt focused on these subtle, ambient movements. A simple camera move like a "very slow zoom in" is acceptable if it enhances the mood.

---

**Mode B: User-Directed Animation (The HIGHEST priority)**
*   **Goal:** Execute the user's command, no matter what.
*   **Action - Sub-Step 1: Feasibility Check.**
    *   Can the requested action be performed with elements already visible in the image?
    *   Or, does the request require creating elements/actions NOT visible in the frame?

*   **Action - Sub-Step 2: Generate the Plan based on Feasibility.**
    *   **If action is VISIBLE in-frame:** Your animation_prompt must focus ENTIRELY on executing that command perfectly. Do not add unnecessary camera moves unless the user requested it.
    *   **If action is NOT VISIBLE in-frame (CRITICAL TASK):** You must INVENT the scene. Your primary tool is revealing camera motion. Generate a prompt that starts with the existing frame and then expands it to include the user's request. Do not say it is impossible.

---

**Final Output Generation (For BOTH modes):**
Based on your decision, generate the following two keys in English.

1.  **animation_prompt:** Your detailed script for the animation engine, created according to the rules above. It must be descriptive, technical, and include quality keywords (cinematic, photorealistic, high detail, smooth motion, 8k).

2.  **negative_prompt:** A comprehensive list of what to AVOID.
    *   **Always include these base negatives:** ugly, deformed, noisy, blurry, distorted, grainy, shaking, jittery, flickering, unnatural movement, static image, watermark, text, signature, cartoon, anime, 3d render.
    *   Add context-specific negatives. For a realistic scene, you might add painting, illustration.

**Provide the output ONLY in a clean JSON format, without any markdown or explanations:**
{
  "animation_prompt": "...",
  "negative_prompt": "..."
}
`, idea)
}
