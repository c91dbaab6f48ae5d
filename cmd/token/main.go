// This command is only used for local testing: it prints an access token for
// the configured subscription, for use with curl against the service
// endpoints directly.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chinmina/translator-bridge/internal/auth"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	SubscriptionKey string `env:"UTIL_SUBSCRIPTION_KEY, required"`
	Region          string `env:"UTIL_REGION"`
	AuthURL         string `env:"UTIL_AUTH_URL"`
	Bare            bool   `env:"UTIL_BARE, default=false"`
}

func main() {
	os.Exit(run(context.Background(), os.Stdout, os.Stderr))
}

// run returns the process exit code, so deferred cleanup completes before
// main exits.
func run(ctx context.Context, stdout, stderr io.Writer) int {
	cfg := Config{}
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error reading config: %v\n", err)
		return 1
	}

	opts := []auth.Option{auth.WithFetchTimeout(15 * time.Second)}
	if cfg.AuthURL != "" {
		opts = append(opts, auth.WithAuthURL(cfg.AuthURL))
	}

	provider, err := auth.NewProvider(auth.Credential{
		SubscriptionKey: cfg.SubscriptionKey,
		Region:          cfg.Region,
	}, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "error creating token provider: %v\n", err)
		return 1
	}
	defer func() { _ = provider.Close() }()

	token, err := provider.GetAccessToken(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error fetching token: %v\n", err)
		return 1
	}

	fmt.Fprint(stdout, header(token, cfg.Bare))
	return 0
}

// header returns the Authorization header value, or the token alone when
// bare is set.
func header(token string, bare bool) string {
	if bare {
		return strings.TrimPrefix(token, "Bearer ")
	}
	return token
}
