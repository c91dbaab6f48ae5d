package cache

import (
	"crypto/tls"

	"github.com/valkey-io/valkey-go"

	"github.com/chinmina/translator-bridge/internal/config"
)

// valkeyClientOption describes a connection to the configured server. The
// credentials are resolved per connection; an empty username authenticates
// as the default user.
func valkeyClientOption(vc config.ValkeyConfig) valkey.ClientOption {
	username, password := vc.Username, vc.Password

	opts := valkey.ClientOption{
		InitAddress: []string{vc.Address},
		AuthCredentialsFn: func(valkey.AuthCredentialsContext) (valkey.AuthCredentials, error) {
			return valkey.AuthCredentials{Username: username, Password: password}, nil
		},
	}
	if vc.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return opts
}
