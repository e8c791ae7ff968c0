/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package credential

import (
	"context"
	"fmt"
	"time"
)

// DefaultResource is the Microsoft Entra resource of Azure Database for
// PostgreSQL and MySQL flexible servers.
const DefaultResource = "https://ossrdbms-aad.database.windows.net"

const (
	ModeDefault         = "default"
	ModeManagedIdentity = "managed_identity"
	ModePassword        = "password"
)

// Token is a bearer token and the instant it stops being accepted.
// A zero ExpiresOn means the token never expires.
type Token struct {
	Value     string
	ExpiresOn time.Time
}

// ValidAt reports whether the token is still usable at t with skew to spare.
func (t Token) ValidAt(now time.Time, skew time.Duration) bool {
	if t.Value == "" {
		return false
	}
	if t.ExpiresOn.IsZero() {
		return true
	}
	return now.Add(skew).Before(t.ExpiresOn)
}

// TokenProvider fetches a token scoped to a resource.
type TokenProvider interface {
	FetchToken(ctx context.Context, resource string) (Token, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context, resource string) (Token, error)

func (f TokenProviderFunc) FetchToken(ctx context.Context, resource string) (Token, error) {
	return f(ctx, resource)
}

// AuthError is returned when no identity is available or the identity
// service rejects the request.
type AuthError struct {
	Resource string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to obtain token for %s", e.Resource)
	}
	return fmt.Sprintf("failed to obtain token for %s: %v", e.Resource, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Config selects and tunes the token provider.
type Config struct {
	Mode        string        `yaml:"mode" env:"AUTH_MODE" env-default:"default"`
	Resource    string        `yaml:"resource" env:"AZURE_POSTGRESQL_RESOURCE" env-default:"https://ossrdbms-aad.database.windows.net"`
	ClientID    string        `yaml:"client_id" env:"AZURE_POSTGRESQL_CLIENTID"`
	Password    string        `yaml:"password" env:"DB_PASSWORD"`
	RefreshSkew time.Duration `yaml:"refresh_skew" env:"AUTH_TOKEN_REFRESH_SKEW" env-default:"5m"`
}

// Validate checks the mode and the fields it depends on.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDefault, ModeManagedIdentity:
		if c.Resource == "" {
			return fmt.Errorf("auth resource cannot be empty in %s mode", c.Mode)
		}
	case ModePassword:
	default:
		return fmt.Errorf("unsupported auth mode: %s, supported modes: %v", c.Mode,
			[]string{ModeDefault, ModeManagedIdentity, ModePassword})
	}
	if c.RefreshSkew < 0 {
		return fmt.Errorf("auth refresh_skew cannot be negative")
	}
	return nil
}

// TokenAuth reports whether database passwords are cloud-issued tokens.
func (c *Config) TokenAuth() bool {
	return c.Mode != ModePassword
}

// NewProvider builds the provider selected by cfg.Mode.
func NewProvider(cfg *Config) (TokenProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModePassword:
		return NewStaticProvider(cfg.Password), nil
	case ModeManagedIdentity:
		p, err := NewManagedIdentityProvider(cfg.ClientID)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := NewDefaultAzureProvider()
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
