// internal/videogen/extract_test.go
package videogen

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reelforge/reelforge/internal/errors"
)

func TestExtractVideoShapes(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     string
	}{
		{
			"direct video bytes",
			`{"video": {"bytesBase64Encoded": "QUJD"}}`,
			"data:video/mp4;base64,QUJD",
		},
		{
			"videos array with nested video",
			`{"videos": [{"video": {"uri": "https://files.example/clip1"}}]}`,
			"https://files.example/clip1?key=AIzaKey",
		},
		{
			"videos array flat entry",
			`{"videos": [{"bytesBase64Encoded": "REVG"}]}`,
			"data:video/mp4;base64,REVG",
		},
		{
			"generatedVideos shape",
			`{"generatedVideos": [{"video": {"uri": "https://files.example/clip2?alt=media"}}]}`,
			"https://files.example/clip2?alt=media&key=AIzaKey",
		},
		{
			"generatedSamples shape",
			`{"generatedSamples": [{"video": {"bytesBase64Encoded": "R0hJ"}}]}`,
			"data:video/mp4;base64,R0hJ",
		},
		{
			"generateVideoResponse envelope",
			`{"generateVideoResponse": {"video": {"bytesBase64Encoded": "SktM"}}}`,
			"data:video/mp4;base64,SktM",
		},
		{
			"candidate inline video fallback",
			`{"candidates": [{"content": {"parts": [{"inlineData": {"mimeType": "video/webm", "data": "TU5P"}}]}}]}`,
			"data:video/webm;base64,TU5P",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractVideo(json.RawMessage(tc.response), "AIzaKey")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractVideoPriorityOrder(t *testing.T) {
	// when several shapes are present, the direct video wins
	response := `{
		"video": {"bytesBase64Encoded": "Rklyc3Q="},
		"videos": [{"bytesBase64Encoded": "U2Vjb25k"}]
	}`
	got, err := ExtractVideo(json.RawMessage(response), "AIzaKey")
	require.NoError(t, err)
	assert.Equal(t, "data:video/mp4;base64,Rklyc3Q=", got)
}

func TestExtractVideoSafetyFiltered(t *testing.T) {
	response := `{"raiMediaFilteredCount": 1, "raiMediaFilteredReasons": ["violence detected in frame 3"]}`
	_, err := ExtractVideo(json.RawMessage(response), "AIzaKey")
	require.Error(t, err)
	assert.True(t, apperrors.IsSafetyFiltered(err))
	assert.Contains(t, err.Error(), "violence detected in frame 3")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.NotEmpty(t, appErr.Hint, "safety rejections must carry remediation guidance")
}

func TestExtractVideoNothingUsable(t *testing.T) {
	_, err := ExtractVideo(json.RawMessage(`{"videos": [{}]}`), "AIzaKey")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNoContent, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "generatedVideos")
}
