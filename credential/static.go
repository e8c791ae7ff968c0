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

import "context"

// StaticProvider hands out a fixed password. It is meant for local
// databases that do not take part in Entra authentication.
type StaticProvider struct {
	password string
}

func NewStaticProvider(password string) *StaticProvider {
	return &StaticProvider{password: password}
}

func (p *StaticProvider) FetchToken(ctx context.Context, resource string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, &AuthError{Resource: resource, Err: err}
	}
	return Token{Value: p.password}, nil
}
