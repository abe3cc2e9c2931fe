package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
)

func TestRenderTable_AlignsColumns(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"long-value", "x"}, {"s", "y"}}, plain)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	// column B starts at the same offset on every row
	assert.Equal(t, strings.Index(lines[1], "x"), strings.Index(lines[2], "y"))
}

func TestPrintReport_Table(t *testing.T) {
	report := &model.PublishReport{RequestID: "r1", Outcomes: []model.PublishOutcome{
		{RequestID: "r1", PlatformID: model.PlatformYouTube, Status: model.OutcomeSuccess, RemoteURL: "https://youtu.be/x", Attempts: 1},
		{RequestID: "r1", PlatformID: model.PlatformTikTok, Status: model.OutcomeFailed, ErrorKind: model.ErrorKindAuth, ErrorMessage: "revoked"},
	}}
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, outputTable, report))
	out := buf.String()
	assert.Contains(t, out, "https://youtu.be/x")
	assert.Contains(t, out, "AuthError: revoked")
	assert.Contains(t, out, "partial: 1 succeeded, 1 failed, 0 skipped")
}

func TestPrintOutcomes_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printOutcomes(&buf, outputTable, nil))
	assert.Contains(t, buf.String(), "No outcomes recorded")

	buf.Reset()
	require.NoError(t, printOutcomes(&buf, outputJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}
