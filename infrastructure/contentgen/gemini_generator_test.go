package contentgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
	"multipost/domain/model"
)

type MockModels struct {
	mock.Mock
}

func (m *MockModels) GenerateContent(ctx context.Context, name string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, name, contents, config)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: s}}}}},
	}
}

func TestGeminiGenerator_Generate(t *testing.T) {
	m := new(MockModels)
	m.On("GenerateContent", mock.Anything, "gemini-test", mock.MatchedBy(func(c []*genai.Content) bool {
		return len(c) == 1 && len(c[0].Parts) == 1 &&
			assert.Contains(t, c[0].Parts[0].Text, `"launch-day"`) &&
			assert.Contains(t, c[0].Parts[0].Text, "TikTok")
	}), mock.Anything).
		Return(textResponse(`{"title":" Launch Day ","description":"We shipped.","hashtags":["Launch","#launch","dev"]}`), nil)

	g := newGenerator(m, "gemini-test")
	meta, err := g.Generate(context.Background(), model.PlatformTikTok, model.VideoContext{FileName: "launch-day"}, model.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "Launch Day", meta.Title)
	assert.Equal(t, "We shipped.", meta.Description)
	assert.Equal(t, []string{"#launch", "#dev"}, meta.Hashtags)
	m.AssertExpectations(t)
}

func TestGeminiGenerator_FencedJSON(t *testing.T) {
	m := new(MockModels)
	m.On("GenerateContent", mock.Anything, defaultModel, mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"title\":\"T\",\"description\":\"D\",\"hashtags\":[]}\n```"), nil)

	meta, err := newGenerator(m, "").Generate(context.Background(), model.PlatformYouTube, model.VideoContext{FileName: "x"}, model.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "T", meta.Title)
	assert.Nil(t, meta.Hashtags)
}

func TestGeminiGenerator_Failures(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
	}{
		{name: "api error", err: errors.New("quota exhausted")},
		{name: "empty response", resp: &genai.GenerateContentResponse{}},
		{name: "not json", resp: textResponse("Here are some ideas!")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockModels)
			m.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.resp, tt.err)
			_, err := newGenerator(m, "").Generate(context.Background(), model.PlatformFacebook, model.VideoContext{FileName: "x"}, model.Metadata{})
			assert.Error(t, err)
		})
	}
}

func TestPrompt_IncludesHints(t *testing.T) {
	p := prompt(model.PlatformYouTube, model.VideoContext{FileName: "demo", Hints: "a cooking demo"}, model.Metadata{Title: "Pasta", Hashtags: []string{"#food"}})
	assert.Contains(t, p, "a cooking demo")
	assert.Contains(t, p, "Keep this title: Pasta")
	assert.Contains(t, p, "#food")
}

func TestNewGeminiGenerator_RequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), "", "")
	assert.Error(t, err)
}
