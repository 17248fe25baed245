package ai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestDecodeJSONPayloadPlain(t *testing.T) {
	var analysis FileAnalysis
	raw := `{"summary":"Covers derivatives.","tags":["math","calculus"],"difficulty":"medium","subject":"Mathematics","quizQuestions":[]}`
	require.NoError(t, decodeJSONPayload(raw, &analysis))
	require.Equal(t, "Covers derivatives.", analysis.Summary)
	require.Equal(t, []string{"math", "calculus"}, analysis.Tags)
}

func TestDecodeJSONPayloadFenced(t *testing.T) {
	var answer Answer
	raw := "```json\n{\"content\":\"X is a variable.\",\"confidence\":0.9}\n```"
	require.NoError(t, decodeJSONPayload(raw, &answer))
	require.Equal(t, "X is a variable.", answer.Content)
	require.InDelta(t, 0.9, answer.Confidence, 0.001)
}

func TestDecodeJSONPayloadWithProse(t *testing.T) {
	var answer Answer
	raw := "Here is the result you asked for:\n{\"content\":\"ok\",\"confidence\":0.4}\nLet me know if you need more."
	require.NoError(t, decodeJSONPayload(raw, &answer))
	require.Equal(t, "ok", answer.Content)
}

func TestDecodeJSONPayloadRejectsGarbage(t *testing.T) {
	var answer Answer
	require.Error(t, decodeJSONPayload("I cannot answer that.", &answer))
}

func TestTruncateUTF8KeepsShortStrings(t *testing.T) {
	require.Equal(t, "abc", truncateUTF8("abc", 10))
	require.Equal(t, "abc", truncateUTF8("abc", 3))
}

func TestTruncateUTF8NeverSplitsRunes(t *testing.T) {
	content := strings.Repeat("数学の講義ノート", 100)
	for limit := 1; limit <= 32; limit++ {
		got := truncateUTF8(content, limit)
		require.LessOrEqual(t, len(got), limit)
		require.True(t, utf8.ValidString(got), "limit %d produced invalid UTF-8", limit)
	}
}
