package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/chinmina/translator-bridge/internal/apierror"
	"github.com/chinmina/translator-bridge/internal/audit"
	"github.com/chinmina/translator-bridge/internal/speech"
	"github.com/chinmina/translator-bridge/internal/translator"
	"github.com/rs/zerolog/log"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// TextTranslator is the translation surface used by the bridge.
type TextTranslator interface {
	Translate(ctx context.Context, texts []string, from string, to []string) ([]translator.TranslationResult, error)
	DetectLanguages(ctx context.Context, texts []string) ([]translator.DetectionResult, error)
	GetLanguages(ctx context.Context, displayLanguage string) ([]translator.ServiceLanguage, error)
}

// SpeechService is the speech surface used by the bridge.
type SpeechService interface {
	Speak(ctx context.Context, params speech.TextToSpeechParameters) (io.ReadCloser, error)
	Recognize(ctx context.Context, audio io.Reader, language string, format speech.RecognitionFormat, profanity speech.ProfanityMode) (*speech.RecognitionResult, error)
}

type TranslateRequest struct {
	Texts []string `json:"texts"`
	From  string   `json:"from,omitempty"`
	To    []string `json:"to,omitempty"`
}

type DetectRequest struct {
	Texts []string `json:"texts"`
}

// SpeakRequest selects a voice either by preset name or explicitly. Explicit
// fields override the preset.
type SpeakRequest struct {
	Text     string                    `json:"text"`
	Preset   string                    `json:"preset,omitempty"`
	Voice    string                    `json:"voice,omitempty"`
	Language string                    `json:"language,omitempty"`
	Gender   *speech.Gender            `json:"gender,omitempty"`
	Format   *speech.AudioOutputFormat `json:"format,omitempty"`
}

func handlePostTranslate(client TextTranslator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		entry := audit.Log(r.Context())
		entry.Operation = "translate"

		var req TranslateRequest
		if !readJSON(w, r, &req) {
			return
		}

		entry.From = req.From
		entry.To = req.To
		entry.TextCount = len(req.Texts)
		entry.CharacterCount = characterCount(req.Texts)

		results, err := client.Translate(r.Context(), req.Texts, req.From, req.To)
		if err != nil {
			failure(w, r, "translation failed", err)
			return
		}

		for _, result := range results {
			if d := result.DetectedLanguage; d != nil {
				entry.Detected = append(entry.Detected, audit.DetectedLanguage{Language: d.Language, Score: d.Score})
			}
		}

		writeJSON(w, results)
	})
}

func handlePostDetect(client TextTranslator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		entry := audit.Log(r.Context())
		entry.Operation = "detect"

		var req DetectRequest
		if !readJSON(w, r, &req) {
			return
		}

		entry.TextCount = len(req.Texts)
		entry.CharacterCount = characterCount(req.Texts)

		results, err := client.DetectLanguages(r.Context(), req.Texts)
		if err != nil {
			failure(w, r, "language detection failed", err)
			return
		}

		entry.Detected = make([]audit.DetectedLanguage, 0, len(results))
		for _, result := range results {
			entry.Detected = append(entry.Detected, audit.DetectedLanguage{Language: result.Language, Score: result.Score})
		}

		writeJSON(w, results)
	})
}

func handleGetLanguages(client TextTranslator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		entry := audit.Log(r.Context())
		entry.Operation = "languages"

		displayLanguage := r.URL.Query().Get("language")
		entry.Language = displayLanguage

		languages, err := client.GetLanguages(r.Context(), displayLanguage)
		if err != nil {
			failure(w, r, "language list failed", err)
			return
		}

		writeJSON(w, languages)
	})
}

func handlePostSpeak(client SpeechService, voices *speech.VoiceCatalog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		entry := audit.Log(r.Context())
		entry.Operation = "speak"

		var req SpeakRequest
		if !readJSON(w, r, &req) {
			return
		}

		params, err := speakParameters(req, voices)
		if err != nil {
			failure(w, r, "invalid speech request", err)
			return
		}

		entry.Voice = params.VoiceName
		entry.Language = params.Language
		entry.OutputFormat = params.OutputFormat.String()
		entry.CharacterCount = utf8.RuneCountInString(params.Text)

		audio, err := client.Speak(r.Context(), params)
		if err != nil {
			failure(w, r, "speech synthesis failed", err)
			return
		}
		defer func() { _ = audio.Close() }()

		w.Header().Set("Content-Type", params.OutputFormat.ContentType())
		w.WriteHeader(http.StatusOK)

		n, err := io.Copy(w, audio)
		entry.AudioBytes = int(n)
		if err != nil {
			// the status is already sent: record the failure only
			entry.Error = fmt.Sprintf("streaming audio failed: %v", err)
			log.Info().Err(err).Msg("streaming synthesised audio failed")
		}
	})
}

func handlePostRecognize(client SpeechService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		entry := audit.Log(r.Context())
		entry.Operation = "recognize"

		query := r.URL.Query()
		language := query.Get("language")
		entry.Language = language

		var format speech.RecognitionFormat
		if v := query.Get("format"); v != "" {
			if err := format.UnmarshalText([]byte(v)); err != nil {
				failure(w, r, "invalid recognition request", apierror.Validation("format", "%v", err))
				return
			}
		}

		var profanity speech.ProfanityMode
		if v := query.Get("profanity"); v != "" {
			if err := profanity.UnmarshalText([]byte(v)); err != nil {
				failure(w, r, "invalid recognition request", apierror.Validation("profanity", "%v", err))
				return
			}
		}

		audio := &countingReader{r: r.Body}
		result, err := client.Recognize(r.Context(), audio, language, format, profanity)
		entry.AudioBytes = audio.n
		if err != nil {
			failure(w, r, "speech recognition failed", err)
			return
		}

		entry.RecognitionStatus = result.RecognitionStatus.String()

		writeJSON(w, recognitionResponse{RecognitionResult: result, Text: result.Text()})
	})
}

// recognitionResponse adds the resolved text to the service result.
type recognitionResponse struct {
	*speech.RecognitionResult
	Text string `json:"Text"`
}

func speakParameters(req SpeakRequest, voices *speech.VoiceCatalog) (speech.TextToSpeechParameters, error) {
	params := speech.TextToSpeechParameters{Text: req.Text}

	if req.Preset != "" {
		preset, ok := voices.Lookup(req.Preset)
		if !ok {
			return params, apierror.Validation("preset", "unknown voice preset %q", req.Preset)
		}
		params = preset.Apply(params)
	}

	if req.Voice != "" {
		params.VoiceName = req.Voice
	}
	if req.Language != "" {
		params.Language = req.Language
	}
	if req.Gender != nil {
		params.Gender = *req.Gender
	}
	if req.Format != nil {
		params.OutputFormat = *req.Format
	}

	if params.Language == "" {
		params.Language = speech.DefaultLanguage
	}
	if params.VoiceName == "" {
		params.VoiceName = speech.DefaultVoiceName
	}

	return params, nil
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// readJSON decodes the request body, writing an error response and
// returning false when it cannot.
func readJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(out)
	if err == nil {
		return true
	}

	audit.Log(r.Context()).Error = fmt.Sprintf("invalid request body: %v", err)
	log.Info().Err(err).Msg("invalid request body")

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
		return false
	}

	writeJSONError(w, http.StatusBadRequest, "request body must be valid JSON")
	return false
}

func writeJSON(w http.ResponseWriter, payload any) {
	marshalledResponse, err := json.Marshal(payload)
	if err != nil {
		requestError(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(marshalledResponse)
	if err != nil {
		// record failure to log: trying to respond to the client at this
		// point will likely fail
		log.Info().Msgf("failed to write response: %v", err)
	}
}

// failure records err in the audit entry and writes the mapped error
// response.
func failure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	entry := audit.Log(r.Context())
	entry.Error = err.Error()
	if se, ok := apierror.AsServiceError(err); ok {
		entry.ServiceCode = se.Code
		entry.ServiceHTTPStatus = se.HTTPStatus
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
		return
	}

	status, message := errorStatus(err)
	log.Info().Err(err).Int("status", status).Msg(msg)
	writeJSONError(w, status, message)
}

func characterCount(texts []string) int {
	n := 0
	for _, t := range texts {
		n += utf8.RuneCountInString(t)
	}
	return n
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

// errorStatus extracts HTTP status code and message from an error.
// Returns (StatusInternalServerError, StatusText) for errors that don't implement HTTPStatuser.
func errorStatus(err error) (int, string) {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5MB max: after this we'll assume the client is broken or malicious
		// and close the connection
		_, _ = io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
