// Package translator is a client for the Translator v3 text API: translation,
// language detection and the supported language list.
package translator

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/chinmina/translator-bridge/internal/apierror"
	"github.com/chinmina/translator-bridge/internal/auth"
	"github.com/chinmina/translator-bridge/internal/request"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	DefaultBaseURL  = "https://api.cognitive.microsofttranslator.com"
	DefaultLanguage = "en"

	apiVersion = "3.0"

	MaxTranslateTexts      = 25
	MaxTranslateTextLength = 5000
	MaxDetectTexts         = 100
	MaxDetectTextLength    = 10000
)

// Client calls the Translator API. It is safe for concurrent use.
type Client struct {
	signer     *request.Signer
	httpClient *http.Client
	baseURL    string
	userAgent  string

	mu       sync.RWMutex
	language string
}

type Option func(*Client)

// WithHTTPClient sets the client used for API calls. Clients sharing an
// http.Client share its connection pool.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithLanguage sets the default target language and the display language for
// GetLanguages.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// New creates a Client that authenticates with tokens.
func New(tokens auth.TokenProvider, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
		language:   DefaultLanguage,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.signer = request.NewSigner(tokens, c.userAgent)

	if err := validateLanguage(c.language); err != nil {
		return nil, err
	}

	return c, nil
}

// Language returns the default language.
func (c *Client) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// SetLanguage replaces the default language. The value must be a valid BCP 47
// tag.
func (c *Client) SetLanguage(lang string) error {
	if err := validateLanguage(lang); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = lang
	return nil
}

// Translate translates each text into every target language. An empty from
// asks the service to detect the source language; an empty to uses the
// client's default language. Results are returned in input order.
func (c *Client) Translate(ctx context.Context, texts []string, from string, to []string) ([]TranslationResult, error) {
	if err := validateTranslateInput(texts); err != nil {
		return nil, err
	}

	if len(to) == 0 {
		to = []string{c.Language()}
	}

	query := url.Values{}
	query.Set("api-version", apiVersion)
	for _, lang := range to {
		query.Add("to", lang)
	}
	if from != "" {
		query.Set("from", from)
	}

	resp, err := c.call(ctx, http.MethodPost, "/translate", query, textBody(texts, 0), nil)
	if err != nil {
		return nil, err
	}

	var results []TranslationResult
	if err := request.DecodeJSON(resp, &results); err != nil {
		return nil, err
	}

	if len(results) != len(texts) {
		return nil, resultCountError(len(texts), len(results))
	}

	return results, nil
}

// TranslateText translates a single text into one target language.
func (c *Client) TranslateText(ctx context.Context, text, from, to string) (*TranslationResult, error) {
	var targets []string
	if to != "" {
		targets = []string{to}
	}

	results, err := c.Translate(ctx, []string{text}, from, targets)
	if err != nil {
		return nil, err
	}

	return &results[0], nil
}

// DetectLanguages detects the language of each text. Texts longer than
// MaxDetectTextLength characters are truncated rather than rejected, as only
// a prefix is needed to detect the language.
func (c *Client) DetectLanguages(ctx context.Context, texts []string) ([]DetectionResult, error) {
	if len(texts) == 0 {
		return nil, apierror.Validation("texts", "at least one text is required")
	}
	if len(texts) > MaxDetectTexts {
		return nil, apierror.Validation("texts", "at most %d texts can be detected at once, got %d", MaxDetectTexts, len(texts))
	}

	query := url.Values{}
	query.Set("api-version", apiVersion)

	resp, err := c.call(ctx, http.MethodPost, "/detect", query, textBody(texts, MaxDetectTextLength), nil)
	if err != nil {
		return nil, err
	}

	var results []DetectionResult
	if err := request.DecodeJSON(resp, &results); err != nil {
		return nil, err
	}

	if len(results) != len(texts) {
		return nil, resultCountError(len(texts), len(results))
	}

	return results, nil
}

// DetectLanguage detects the language of a single text.
func (c *Client) DetectLanguage(ctx context.Context, text string) (*DetectionResult, error) {
	results, err := c.DetectLanguages(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return &results[0], nil
}

// GetLanguages lists the languages supported for translation, with names
// localised to displayLanguage (or the client default when empty), sorted by
// name using that language's collation rules.
func (c *Client) GetLanguages(ctx context.Context, displayLanguage string) ([]ServiceLanguage, error) {
	if displayLanguage == "" {
		displayLanguage = c.Language()
	}

	query := url.Values{}
	query.Set("api-version", apiVersion)
	query.Set("scope", "translation")

	header := http.Header{}
	header.Set("Accept-Language", displayLanguage)

	resp, err := c.call(ctx, http.MethodGet, "/languages", query, nil, header)
	if err != nil {
		return nil, err
	}

	var body struct {
		Translation map[string]ServiceLanguage `json:"translation"`
	}
	if err := request.DecodeJSON(resp, &body); err != nil {
		return nil, err
	}

	languages := make([]ServiceLanguage, 0, len(body.Translation))
	for code, lang := range body.Translation {
		lang.Code = code
		languages = append(languages, lang)
	}

	sortByName(languages, displayLanguage)

	return languages, nil
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, header http.Header) (*http.Response, error) {
	endpoint := c.baseURL + path + "?" + query.Encode()

	var req *http.Request
	var err error
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return nil, fmt.Errorf("encoding request body: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for key, values := range header {
		req.Header[key] = values
	}

	if err := c.signer.Sign(ctx, req); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Str("traceId", req.Header.Get(request.HeaderTraceID)).
		Msg("calling translator API")

	return request.Send(c.httpClient, req)
}

type textItem struct {
	Text string `json:"text"`
}

// textBody builds the request array, truncating each text to limit runes
// when limit is positive.
func textBody(texts []string, limit int) []textItem {
	items := make([]textItem, len(texts))
	for i, text := range texts {
		if limit > 0 {
			text = truncateRunes(text, limit)
		}
		items[i] = textItem{Text: text}
	}
	return items
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func validateTranslateInput(texts []string) error {
	if len(texts) == 0 {
		return apierror.Validation("texts", "at least one text is required")
	}
	if len(texts) > MaxTranslateTexts {
		return apierror.Validation("texts", "at most %d texts can be translated at once, got %d", MaxTranslateTexts, len(texts))
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return apierror.Validation("texts", "text %d is blank", i)
		}
		if n := utf8.RuneCountInString(text); n > MaxTranslateTextLength {
			return apierror.Validation("texts", "text %d is %d characters, the limit is %d", i, n, MaxTranslateTextLength)
		}
	}

	return nil
}

func validateLanguage(lang string) error {
	if _, err := language.Parse(lang); err != nil {
		return apierror.Validation("language", "%q is not a valid language tag", lang)
	}
	return nil
}

func sortByName(languages []ServiceLanguage, displayLanguage string) {
	tag, err := language.Parse(displayLanguage)
	if err != nil {
		tag = language.English
	}

	// collators are not safe for concurrent use
	collator := collate.New(tag)

	slices.SortFunc(languages, func(a, b ServiceLanguage) int {
		if c := collator.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
}

func resultCountError(expected, actual int) error {
	return &apierror.ServiceError{
		Code:    http.StatusInternalServerError,
		Message: fmt.Sprintf("expected %d results, got %d", expected, actual),
	}
}
