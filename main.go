package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/chinmina/translator-bridge/internal/audit"
	"github.com/chinmina/translator-bridge/internal/auth"
	"github.com/chinmina/translator-bridge/internal/cache"
	"github.com/chinmina/translator-bridge/internal/config"
	"github.com/chinmina/translator-bridge/internal/jwt"
	"github.com/chinmina/translator-bridge/internal/observe"
	"github.com/chinmina/translator-bridge/internal/server"
	"github.com/chinmina/translator-bridge/internal/speech"
	"github.com/chinmina/translator-bridge/internal/translator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinas/alice"
)

func configureServerRoutes(ctx context.Context, cfg config.Config, hooks *server.ShutdownHooks) (http.Handler, error) {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// configure middleware
	auditor := audit.Middleware()

	// Text requests are bounded by the translator's own limits (25 texts of
	// 5000 characters, or 100 texts for detection), which fits comfortably in
	// this limit. Audio uploads get a larger allowance.
	textRouteMiddleware := alice.New(maxRequestSize(int64(1<<20)), auditor)  // 1 MB
	audioRouteMiddleware := alice.New(maxRequestSize(int64(4<<20)), auditor) // 4 MB
	standardRouteMiddleware := alice.New(maxRequestSize(int64(20 << 10)))    // 20 KB

	if cfg.Authorization.Enabled() {
		authorizer, err := jwt.Middleware(cfg.Authorization)
		if err != nil {
			return nil, fmt.Errorf("caller authorization configuration failed: %w", err)
		}
		// after the auditor, so rejected callers are still audited
		textRouteMiddleware = textRouteMiddleware.Append(authorizer)
		audioRouteMiddleware = audioRouteMiddleware.Append(authorizer)
	} else {
		log.Warn().Msg("authorization: no JWT issuer configured, callers are not verified")
	}

	// one token cache serves both services: entries are keyed by a digest of
	// the credential
	tokenCache, err := cache.NewFromConfig[auth.CachedToken](ctx, cfg.Cache, cfg.Translator.TokenRefresh(), cfg.Cache.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("token cache configuration failed: %w", err)
	}
	hooks.AddCloser("token-cache", tokenCache)

	translatorTokens, err := newTokenProvider(ctx, cfg.Translator, tokenCache,
		auth.Credential{SubscriptionKey: cfg.Translator.SubscriptionKey, Region: cfg.Translator.Region},
		cfg.Translator.AuthURL,
	)
	if err != nil {
		return nil, fmt.Errorf("translator token provider configuration failed: %w", err)
	}
	hooks.AddCloser("translator-tokens", translatorTokens)

	translatorOpts := []translator.Option{
		translator.WithHTTPClient(http.DefaultClient),
		translator.WithLanguage(cfg.Translator.Language),
	}
	if cfg.Translator.APIURL != "" {
		translatorOpts = append(translatorOpts, translator.WithBaseURL(cfg.Translator.APIURL))
	}

	translatorClient, err := translator.New(translatorTokens, translatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("translator configuration failed: %w", err)
	}

	mux.Handle("POST /translate", textRouteMiddleware.Then(handlePostTranslate(translatorClient)))
	mux.Handle("POST /detect", textRouteMiddleware.Then(handlePostDetect(translatorClient)))
	mux.Handle("GET /languages", textRouteMiddleware.Then(handleGetLanguages(translatorClient)))

	if cfg.Speech.Enabled() {
		speechTokens, err := newTokenProvider(ctx, cfg.Translator, tokenCache,
			auth.Credential{SubscriptionKey: cfg.Speech.SubscriptionKey, Region: cfg.Speech.Region},
			cfg.Speech.AuthURL,
		)
		if err != nil {
			return nil, fmt.Errorf("speech token provider configuration failed: %w", err)
		}
		hooks.AddCloser("speech-tokens", speechTokens)

		speechOpts := []speech.Option{speech.WithHTTPClient(http.DefaultClient)}
		if cfg.Speech.TTSURL != "" {
			speechOpts = append(speechOpts, speech.WithTTSURL(cfg.Speech.TTSURL))
		}
		if cfg.Speech.STTURL != "" {
			speechOpts = append(speechOpts, speech.WithSTTURL(cfg.Speech.STTURL))
		}

		speechClient, err := speech.New(speechTokens, cfg.Speech.Region, speechOpts...)
		if err != nil {
			return nil, fmt.Errorf("speech configuration failed: %w", err)
		}

		voices, err := loadVoices(cfg.Speech)
		if err != nil {
			return nil, err
		}

		mux.Handle("POST /speak", textRouteMiddleware.Then(handlePostSpeak(speechClient, voices)))
		mux.Handle("POST /recognize", audioRouteMiddleware.Then(handlePostRecognize(speechClient)))
	} else {
		log.Info().Msg("speech: no region configured, speech routes disabled")
	}

	// healthchecks are not included in telemetry or auditing
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux, nil
}

// newTokenProvider creates a provider for credential and attempts to fetch
// its first token. A failed warm-up is not fatal: the service may be
// temporarily unavailable, and requests will retry the fetch.
func newTokenProvider(ctx context.Context, cfg config.TranslatorConfig, tokenCache cache.TokenCache[auth.CachedToken], credential auth.Credential, authURL string) (*auth.Provider, error) {
	opts := []auth.Option{
		auth.WithHTTPClient(http.DefaultClient),
		auth.WithCache(tokenCache),
		auth.WithRefreshThreshold(cfg.TokenRefresh()),
		auth.WithFetchTimeout(cfg.TokenFetchTimeout()),
	}
	if authURL != "" {
		opts = append(opts, auth.WithAuthURL(authURL))
	}

	provider, err := auth.NewProvider(credential, opts...)
	if err != nil {
		return nil, err
	}

	if err := provider.Warm(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("credential", credential.Redacted()).
			Str("region", credential.Region).
			Msg("initial token fetch failed, continuing")
	}

	return provider, nil
}

func loadVoices(cfg config.SpeechConfig) (*speech.VoiceCatalog, error) {
	if cfg.VoicesFile == "" {
		return speech.NewVoiceCatalog()
	}

	voices, err := speech.LoadVoiceCatalog(cfg.VoicesFile)
	if err != nil {
		return nil, fmt.Errorf("voice preset configuration failed: %w", err)
	}

	log.Info().Strs("voices", voices.Names()).Msg("speech: voice presets loaded")

	return voices, nil
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	hooks := &server.ShutdownHooks{}
	// registered first so it is the last to run, after every component that
	// may still emit spans
	hooks.AddContext("telemetry", shutdownTelemetry)

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	// setup routing and dependencies
	handler, err := configureServerRoutes(ctx, cfg, hooks)
	if err != nil {
		hooks.Execute(ctx)
		return fmt.Errorf("server routing configuration failed: %w", err)
	}

	// start the server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	err = server.Serve(ctx, cfg.Server, srv, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
