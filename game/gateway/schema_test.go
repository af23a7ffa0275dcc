package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Valid(t *testing.T) {
	raw := []byte(`{
		"position": {"x": 12.5, "y": 40},
		"experience": 160, "level": 2, "coins": 20,
		"badges": ["first_quest"],
		"gameStats": {"questsCompleted": 1, "playTimeMinutes": 3},
		"collectedRewards": ["chest-1"],
		"activeQuests": [], "completedQuests": ["hello"], "interactedNPCs": ["lesson_hello"],
		"questProgress": {"hello": {"lessonComplete": true, "quizComplete": true, "progressPercent": 100}},
		"direction": "left", "animation": "idle_left",
		"timestamp": "2025-01-02T03:04:05Z"
	}`)

	snap := Decode(raw)
	require.NotNil(t, snap)
	assert.Equal(t, Position{X: 12.5, Y: 40}, *snap.Position)
	assert.Equal(t, uint64(2), snap.Level)
	assert.Equal(t, []string{"hello"}, snap.CompletedQuests)
	assert.Equal(t, uint64(3), snap.Stats.PlayTimeMinutes)
	assert.True(t, snap.QuestProgress["hello"].QuizComplete)
}

func TestDecode_MalformedIsAbsent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"not json", `{"position":`},
		{"not an object", `[1,2]`},
		{"missing position", `{"level": 2}`},
		{"null position", `{"position": null}`},
		{"string coordinate", `{"position": {"x": "12", "y": 3}}`},
		{"missing coordinate", `{"position": {"x": 12}}`},
		{"negative coins", `{"position": {"x": 1, "y": 1}, "coins": -5}`},
		{"fractional level", `{"position": {"x": 1, "y": 1}, "level": 2.5}`},
		{"bad badge list", `{"position": {"x": 1, "y": 1}, "badges": "gold"}`},
		{"bad progress", `{"position": {"x": 1, "y": 1}, "questProgress": {"a": {"progressPercent": 70}}}`},
		{"bad timestamp", `{"position": {"x": 1, "y": 1}, "timestamp": "yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Decode([]byte(tt.raw)))
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	in := snapshotAt(3, 480, 70, "hello")
	data, err := Encode(in)
	require.NoError(t, err)
	out := Decode(data)
	require.NotNil(t, out)
	assert.Equal(t, in.Level, out.Level)
	assert.Equal(t, in.CompletedQuests, out.CompletedQuests)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
}
