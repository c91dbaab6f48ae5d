package speech_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/chinmina/translator-bridge/internal/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioOutputFormat_Table(t *testing.T) {
	cases := []struct {
		format   speech.AudioOutputFormat
		header   string
		mimeType string
	}{
		{speech.Riff16Khz16BitMonoPcm, "riff-16khz-16bit-mono-pcm", "audio/wav"},
		{speech.Raw8Khz8BitMonoMULaw, "raw-8khz-8bit-mono-mulaw", "application/octet-stream"},
		{speech.Ssml16Khz16BitMonoTts, "ssml-16khz-16bit-mono-tts", "application/octet-stream"},
		{speech.Audio24Khz160KBitRateMonoMp3, "audio-24khz-160kbitrate-mono-mp3", "audio/mpeg"},
		{speech.AudioOutputFormat(99), "riff-16khz-16bit-mono-pcm", "audio/wav"},
	}

	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			assert.Equal(t, tc.header, tc.format.String())
			assert.Equal(t, tc.mimeType, tc.format.ContentType())
		})
	}

	var f speech.AudioOutputFormat
	require.NoError(t, f.UnmarshalText([]byte("raw-24khz-16bit-mono-pcm")))
	assert.Equal(t, speech.Raw24Khz16BitMonoPcm, f)
	assert.Error(t, f.UnmarshalText([]byte("wav")))
}

func TestEnums_JSON(t *testing.T) {
	var req struct {
		Gender    speech.Gender            `json:"gender"`
		Format    speech.RecognitionFormat `json:"format"`
		Profanity speech.ProfanityMode     `json:"profanity"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"gender":"male","format":"Detailed","profanity":"REMOVED"}`), &req))

	assert.Equal(t, speech.Male, req.Gender)
	assert.Equal(t, speech.Detailed, req.Format)
	assert.Equal(t, speech.Removed, req.Profanity)

	assert.Error(t, json.Unmarshal([]byte(`{"gender":"other"}`), &req))
}

func TestRecognitionStatus_Unknown(t *testing.T) {
	var result speech.RecognitionResult
	err := json.Unmarshal([]byte(`{"RecognitionStatus":"Exploded"}`), &result)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"RecognitionStatus":"InitialSilenceTimeout"}`), &result))
	assert.Equal(t, speech.InitialSilenceTimeout, result.RecognitionStatus)
	assert.Empty(t, result.Text())
}

func TestLoadVoiceCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
voices:
  - name: Narrator
    voice: en-GB-RyanNeural
    language: en-GB
    gender: male
    format: audio-16khz-32kbitrate-mono-mp3
  - name: assistant
    voice: en-US-JennyNeural
`), 0o600))

	catalog, err := speech.LoadVoiceCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Narrator", "assistant"}, catalog.Names())

	narrator, ok := catalog.Lookup("narrator")
	require.True(t, ok)
	assert.Equal(t, speech.Male, narrator.Gender)
	assert.Equal(t, speech.Audio16Khz32KBitRateMonoMp3, narrator.OutputFormat)

	params := narrator.Apply(speech.TextToSpeechParameters{Text: "Once upon a time"})
	assert.Equal(t, "Once upon a time", params.Text)
	assert.Equal(t, "en-GB-RyanNeural", params.VoiceName)
	assert.Equal(t, "en-GB", params.Language)

	assistant, ok := catalog.Lookup("assistant")
	require.True(t, ok)
	assert.Equal(t, speech.DefaultLanguage, assistant.Language)
	assert.Equal(t, speech.Female, assistant.Gender)
	assert.Equal(t, speech.Riff16Khz16BitMonoPcm, assistant.OutputFormat)

	_, ok = catalog.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadVoiceCatalog_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		errText string
	}{
		{"unknown field", "voices:\n  - name: a\n    voice: v\n    pitch: high\n", "field pitch not found"},
		{"duplicate", "voices:\n  - name: a\n    voice: v\n  - name: A\n    voice: w\n", "duplicate voice preset name"},
		{"missing voice", "voices:\n  - name: a\n", "has no voice"},
		{"bad gender", "voices:\n  - name: a\n    voice: v\n    gender: robot\n", "unknown gender"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "voices.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))

			_, err := speech.LoadVoiceCatalog(path)
			assert.ErrorContains(t, err, tc.errText)
		})
	}

	_, err := speech.LoadVoiceCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "opening voice catalog")
}

func TestVoiceCatalog_NilLookup(t *testing.T) {
	var catalog *speech.VoiceCatalog
	_, ok := catalog.Lookup("any")
	assert.False(t, ok)
	assert.Empty(t, catalog.Names())
}
