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
	"sync"
	"time"
)

// CachingProvider keeps the last token per resource and refreshes it once
// it is within skew of expiring. Callers waiting on a refresh share its
// result; failed fetches are not cached.
type CachingProvider struct {
	next   TokenProvider
	skew   time.Duration
	now    func() time.Time
	mu     sync.Mutex
	tokens map[string]Token
}

var _ TokenProvider = (*CachingProvider)(nil)

// NewCachingProvider wraps next with an expiry-aware cache.
func NewCachingProvider(next TokenProvider, skew time.Duration) *CachingProvider {
	return &CachingProvider{
		next:   next,
		skew:   skew,
		now:    time.Now,
		tokens: make(map[string]Token),
	}
}

func (p *CachingProvider) FetchToken(ctx context.Context, resource string) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tok, ok := p.tokens[resource]; ok && tok.ValidAt(p.now(), p.skew) {
		return tok, nil
	}
	tok, err := p.next.FetchToken(ctx, resource)
	if err != nil {
		delete(p.tokens, resource)
		return Token{}, err
	}
	p.tokens[resource] = tok
	return tok, nil
}

// Invalidate drops the cached token for resource, forcing the next call to
// go to the underlying provider.
func (p *CachingProvider) Invalidate(resource string) {
	p.mu.Lock()
	delete(p.tokens, resource)
	p.mu.Unlock()
}

// Expiry returns the expiry of the cached token for resource, if any.
func (p *CachingProvider) Expiry(resource string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, ok := p.tokens[resource]
	return tok.ExpiresOn, ok
}
