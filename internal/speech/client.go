// Package speech is a client for the regional Speech REST API: text to speech
// synthesis and short-audio speech recognition.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/chinmina/translator-bridge/internal/apierror"
	"github.com/chinmina/translator-bridge/internal/auth"
	"github.com/chinmina/translator-bridge/internal/request"
	"github.com/rs/zerolog/log"
)

const (
	MaxSpeakTextLength = 800

	DefaultLanguage  = "en-US"
	DefaultVoiceName = "en-US-AriaNeural"

	ttsUserAgent     = "TextToSpeechClient"
	audioContentType = "audio/wav; codecs=audio/pcm; samplerate=16000"
)

// TTSURL returns the synthesis endpoint for a region.
func TTSURL(region string) string {
	return fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)
}

// STTURL returns the short-audio recognition endpoint for a region.
func STTURL(region string) string {
	return fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", region)
}

// TextToSpeechParameters describes a synthesis request. Empty Language and
// VoiceName use the defaults.
type TextToSpeechParameters struct {
	Text         string
	Language     string
	VoiceName    string
	Gender       Gender
	OutputFormat AudioOutputFormat
}

func (p TextToSpeechParameters) withDefaults() TextToSpeechParameters {
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.VoiceName == "" {
		p.VoiceName = DefaultVoiceName
	}
	return p
}

// Client calls the Speech API for a single region.
type Client struct {
	ttsSigner  *request.Signer
	sttSigner  *request.Signer
	httpClient *http.Client
	region     string
	ttsURL     string
	sttURL     string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTTSURL overrides the regional synthesis endpoint.
func WithTTSURL(ttsURL string) Option {
	return func(c *Client) {
		c.ttsURL = ttsURL
	}
}

// WithSTTURL overrides the regional recognition endpoint.
func WithSTTURL(sttURL string) Option {
	return func(c *Client) {
		c.sttURL = sttURL
	}
}

// New creates a Client. The Speech API has no global endpoint, so region is
// required.
func New(tokens auth.TokenProvider, region string, opts ...Option) (*Client, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return nil, apierror.Validation("region", "a region is required for the speech service")
	}

	c := &Client{
		ttsSigner:  request.NewSigner(tokens, ttsUserAgent),
		sttSigner:  request.NewSigner(tokens, ""),
		httpClient: http.DefaultClient,
		region:     region,
		ttsURL:     TTSURL(region),
		sttURL:     STTURL(region),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) Region() string {
	return c.region
}

// Speak synthesises text and returns the audio stream. The caller must close
// it.
func (c *Client) Speak(ctx context.Context, params TextToSpeechParameters) (io.ReadCloser, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, apierror.Validation("text", "text is required")
	}
	if n := utf8.RuneCountInString(params.Text); n > MaxSpeakTextLength {
		return nil, apierror.Validation("text", "text is %d characters, the limit is %d", n, MaxSpeakTextLength)
	}

	params = params.withDefaults()

	ssml, err := buildSSML(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ttsURL, bytes.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", params.OutputFormat.String())

	if err := c.ttsSigner.Sign(ctx, req); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Str("voice", params.VoiceName).
		Str("format", params.OutputFormat.String()).
		Int("characters", utf8.RuneCountInString(params.Text)).
		Msg("synthesising speech")

	resp, err := request.Send(c.httpClient, req)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Recognize transcribes a short audio clip (16kHz mono PCM WAV). The audio is
// streamed with chunked transfer encoding and is never buffered whole.
func (c *Client) Recognize(ctx context.Context, audio io.Reader, language string, format RecognitionFormat, profanity ProfanityMode) (*RecognitionResult, error) {
	if audio == nil {
		return nil, apierror.Validation("audio", "an audio stream is required")
	}
	if strings.TrimSpace(language) == "" {
		return nil, apierror.Validation("language", "a recognition language is required")
	}
	if _, ok := recognitionFormatNames[format]; !ok {
		return nil, apierror.Validation("format", "unknown recognition format %d", int(format))
	}
	if _, ok := profanityNames[profanity]; !ok {
		return nil, apierror.Validation("profanity", "unknown profanity mode %d", int(profanity))
	}

	query := url.Values{}
	query.Set("language", language)
	query.Set("format", format.String())
	query.Set("profanity", profanity.String())

	// hide the concrete reader type so the length is never sniffed and the
	// body is always sent chunked
	body := io.NopCloser(struct{ io.Reader }{audio})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sttURL+"?"+query.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.ContentLength = -1
	req.Header.Set("Content-Type", audioContentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Expect", "100-continue")

	if err := c.sttSigner.Sign(ctx, req); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Str("language", language).
		Str("format", format.String()).
		Msg("recognising speech")

	resp, err := request.Send(c.httpClient, req)
	if err != nil {
		return nil, err
	}

	var result RecognitionResult
	if err := request.DecodeJSON(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
