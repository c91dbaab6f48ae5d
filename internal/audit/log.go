// Package audit writes one structured log entry per bridge request,
// describing what was asked of the remote service and the outcome.
package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Level is above all standard levels so audit entries survive any level
	// filtering.
	Level     = zerolog.Level(20)
	LevelName = "audit"
)

func init() {
	standard := zerolog.LevelFieldMarshalFunc
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		if l == Level {
			return LevelName
		}
		return standard(l)
	}
}

type contextKey struct{}

// DetectedLanguage is a language detection outcome recorded in the entry.
type DetectedLanguage struct {
	Language string
	Score    float64
}

func (d DetectedLanguage) MarshalZerologObject(e *zerolog.Event) {
	e.Str("language", d.Language).Float64("score", d.Score)
}

// Entry is the audit record for a single request. Handlers fill in the
// fields relevant to their operation; empty groups are omitted from the log.
type Entry struct {
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string

	Operation string

	From           string
	To             []string
	TextCount      int
	CharacterCount int
	Detected       []DetectedLanguage

	Voice             string
	Language          string
	OutputFormat      string
	RecognitionStatus string
	AudioBytes        int

	ServiceCode       int
	ServiceHTTPStatus int

	Authorized   bool
	AuthSubject  string
	AuthIssuer   string
	AuthAudience []string
	AuthExpiry   int64

	Error string
}

func (e *Entry) MarshalZerologObject(event *zerolog.Event) {
	event.Dict("request", zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent),
	)

	if e.Operation != "" {
		event.Str("operation", e.Operation)
	}

	translation := (&group{}).
		str("from", e.From).
		strs("to", e.To).
		int("texts", e.TextCount).
		int("characters", e.CharacterCount)
	objects(translation, "detected", e.Detected).attachTo(event, "translation")

	(&group{}).
		str("voice", e.Voice).
		str("language", e.Language).
		str("outputFormat", e.OutputFormat).
		str("recognitionStatus", e.RecognitionStatus).
		int("audioBytes", e.AudioBytes).
		attachTo(event, "speech")

	if e.Authorized {
		event.Dict("auth", zerolog.Dict().
			Str("subject", e.AuthSubject).
			Str("issuer", e.AuthIssuer).
			Strs("audience", e.AuthAudience).
			Int64("expiry", e.AuthExpiry),
		)
	}

	(&group{}).
		int("code", e.ServiceCode).
		int("httpStatus", e.ServiceHTTPStatus).
		attachTo(event, "service")

	if e.Error != "" {
		event.Str("error", e.Error)
	}
}

// Begin records the request details.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.SourceIP = r.RemoteAddr
	e.UserAgent = r.UserAgent()
}

// End returns a function that writes the entry, suitable for defer. A panic
// in progress is recorded in the entry and then continues.
func (e *Entry) End(ctx context.Context) func() {
	start := time.Now()

	return func() {
		if r := recover(); r != nil {
			if e.Error != "" {
				e.Error += "; "
			}
			e.Error += fmt.Sprintf("panic: %v", r)
			e.Status = http.StatusInternalServerError
			defer panic(r)
		}

		if e.Status == 0 {
			e.Status = http.StatusOK
		}

		log.Ctx(ctx).WithLevel(Level).
			EmbedObject(e).
			Dur("duration", time.Since(start)).
			Msg("audit_event")
	}
}

// Context returns the entry attached to ctx, attaching a new one when there
// is none.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, contextKey{}, e), e
}

// Log returns the entry attached to ctx. Without one, the returned entry is
// detached and changes to it are discarded.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Middleware attaches an Entry to each request and writes it when the
// handler completes, including when it panics.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)
			defer entry.End(ctx)()

			w = httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						entry.Status = code
						next(code)
					}
				},
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
