package clients_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"multipost/infrastructure/clients"
)

func TestAppendHashtags(t *testing.T) {
	tests := []struct {
		name        string
		description string
		hashtags    []string
		want        string
	}{
		{name: "appends missing", description: "hello", hashtags: []string{"#go"}, want: "hello\n\n#go"},
		{name: "already present", description: "hello #Go", hashtags: []string{"#go"}, want: "hello #Go"},
		{name: "empty description", description: "", hashtags: []string{"#a", "#b"}, want: "#a #b"},
		{name: "no hashtags", description: "plain", want: "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clients.AppendHashtags(tt.description, tt.hashtags))
		})
	}
}
