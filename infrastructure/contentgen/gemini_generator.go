// Package contentgen suggests titles, descriptions and hashtags with Gemini.
package contentgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"multipost/domain/model"
	"multipost/infrastructure/logger"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// contentModel is the part of *genai.Models the generator uses.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var metadataSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString, Description: "Video title"},
		"description": {Type: genai.TypeString, Description: "Video description without hashtags"},
		"hashtags":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Hashtags without the # sign"},
	},
	Required: []string{"title", "description", "hashtags"},
}

// platformStyle tunes the prompt per platform.
var platformStyle = map[model.PlatformID]string{
	model.PlatformYouTube:  "YouTube: a searchable title under 100 characters, a descriptive paragraph, up to 10 hashtags.",
	model.PlatformFacebook: "Facebook page post: a friendly title, a short engaging description, up to 5 hashtags.",
	model.PlatformTikTok:   "TikTok: a punchy caption-style title under 150 characters, a one-line description, up to 8 trending-style hashtags.",
}

type GeminiGenerator struct {
	models contentModel
	model  string
}

// NewGeminiGenerator builds a generator on the Gemini API backend.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGenerator(client.Models, modelName), nil
}

func newGenerator(m contentModel, modelName string) *GeminiGenerator {
	if modelName == "" {
		modelName = defaultModel
	}
	return &GeminiGenerator{models: m, model: modelName}
}

func (g *GeminiGenerator) Generate(ctx context.Context, platform model.PlatformID, video model.VideoContext, hints model.Metadata) (model.Metadata, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: "You write metadata for short social videos. Answer with JSON only."}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   metadataSchema,
	}
	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{
		genai.NewContentFromText(prompt(platform, video, hints), genai.RoleUser),
	}, config)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return model.Metadata{}, errors.New("empty response")
	}

	var out struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Hashtags    []string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(stripFence(text)), &out); err != nil {
		return model.Metadata{}, fmt.Errorf("parse response: %w", err)
	}
	logger.GetLogger().WithField("platform", platform).WithField("model", g.model).Debug("Generated metadata")
	return model.Metadata{
		Title:       strings.TrimSpace(out.Title),
		Description: strings.TrimSpace(out.Description),
		Hashtags:    model.NormalizeHashtags(out.Hashtags),
	}, nil
}

func prompt(platform model.PlatformID, video model.VideoContext, hints model.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write metadata for a video file named %q.\n", video.FileName)
	if style, ok := platformStyle[platform]; ok {
		b.WriteString(style + "\n")
	}
	if video.Hints != "" {
		fmt.Fprintf(&b, "About the video: %s\n", video.Hints)
	}
	if hints.Title != "" {
		fmt.Fprintf(&b, "Keep this title: %s\n", hints.Title)
	}
	if hints.Description != "" {
		fmt.Fprintf(&b, "Keep this description: %s\n", hints.Description)
	}
	if len(hints.Hashtags) > 0 {
		fmt.Fprintf(&b, "Include these hashtags: %s\n", strings.Join(hints.Hashtags, " "))
	}
	return b.String()
}

// stripFence removes a ```json fence some models add despite the MIME type.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
