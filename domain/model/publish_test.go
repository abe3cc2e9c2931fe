package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"multipost/domain/model"
)

func TestMetadata_Merge(t *testing.T) {
	user := model.Metadata{Title: "Mine", Extra: map[string]string{"privacy": "public"}}
	fallback := model.Metadata{Title: "Gen", Description: "Gen desc", Hashtags: []string{"#a"}, Extra: map[string]string{"privacy": "private", "category_id": "10"}}

	got := user.Merge(fallback)
	assert.Equal(t, "Mine", got.Title)
	assert.Equal(t, "Gen desc", got.Description)
	assert.Equal(t, []string{"#a"}, got.Hashtags)
	assert.Equal(t, map[string]string{"privacy": "public", "category_id": "10"}, got.Extra)
	assert.True(t, got.Complete())
	assert.False(t, user.Complete())
}

func TestPublishRequest_MetadataFor(t *testing.T) {
	req := &model.PublishRequest{
		Metadata:  model.Metadata{Title: "Shared", Description: "Body"},
		Overrides: map[model.PlatformID]model.Metadata{model.PlatformTikTok: {Title: "Short"}},
	}
	assert.Equal(t, model.Metadata{Title: "Short", Description: "Body"}, req.MetadataFor(model.PlatformTikTok))
	assert.Equal(t, "Shared", req.MetadataFor(model.PlatformYouTube).Title)
}

func TestPublishRequest_Clone(t *testing.T) {
	req := &model.PublishRequest{
		RequestID: "r1",
		Platforms: []model.PlatformID{model.PlatformYouTube},
		Metadata:  model.Metadata{Hashtags: []string{"#go"}, Extra: map[string]string{"privacy": "public"}},
		Overrides: map[model.PlatformID]model.Metadata{model.PlatformTikTok: {Title: "Short", Hashtags: []string{"#t"}}},
	}
	c := req.Clone()
	c.Platforms[0] = model.PlatformFacebook
	c.Metadata.Hashtags[0] = "#changed"
	c.Metadata.Extra["privacy"] = "private"
	c.Overrides[model.PlatformTikTok].Hashtags[0] = "#changed"
	c.Overrides[model.PlatformYouTube] = model.Metadata{Title: "new"}

	assert.Equal(t, model.PlatformYouTube, req.Platforms[0])
	assert.Equal(t, "#go", req.Metadata.Hashtags[0])
	assert.Equal(t, "public", req.Metadata.Extra["privacy"])
	assert.Equal(t, "#t", req.Overrides[model.PlatformTikTok].Hashtags[0])
	assert.Len(t, req.Overrides, 1)
	assert.Nil(t, (*model.PublishRequest)(nil).Clone())
}

func TestVideo_Name(t *testing.T) {
	assert.Equal(t, "launch day", model.Video{Path: "/tmp/clips/launch day.mp4"}.Name())
}

func TestPublishReport_Summary(t *testing.T) {
	outcome := func(p model.PlatformID, s model.OutcomeStatus) model.PublishOutcome {
		return model.PublishOutcome{PlatformID: p, Status: s}
	}
	tests := []struct {
		name     string
		outcomes []model.PublishOutcome
		want     model.ReportSummary
	}{
		{"all succeeded", []model.PublishOutcome{outcome("a", model.OutcomeSuccess), outcome("b", model.OutcomeSuccess)}, model.SummaryAllSucceeded},
		{"partial", []model.PublishOutcome{outcome("a", model.OutcomeSuccess), outcome("b", model.OutcomeFailed)}, model.SummaryPartial},
		{"all failed", []model.PublishOutcome{outcome("a", model.OutcomeFailed), outcome("b", model.OutcomeSkipped)}, model.SummaryAllFailed},
		{"all skipped", []model.PublishOutcome{outcome("a", model.OutcomeSkipped)}, model.SummaryAllSkipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &model.PublishReport{Outcomes: tt.outcomes}
			assert.Equal(t, tt.want, r.Summary())
			assert.Equal(t, tt.want == model.SummaryAllSucceeded || tt.want == model.SummaryPartial, r.AnySucceeded())
		})
	}
}

func TestPublishReport_Sort(t *testing.T) {
	r := &model.PublishReport{Outcomes: []model.PublishOutcome{{PlatformID: "youtube"}, {PlatformID: "facebook"}}}
	r.Sort()
	o, ok := r.Outcome("facebook")
	assert.True(t, ok)
	assert.Equal(t, model.PlatformID("facebook"), o.PlatformID)
	assert.Equal(t, model.PlatformID("facebook"), r.Outcomes[0].PlatformID)
}
