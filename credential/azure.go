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
	"errors"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

var errEmptyToken = errors.New("identity service returned an empty token")

// AzureProvider fetches Microsoft Entra tokens through an azcore credential.
type AzureProvider struct {
	cred azcore.TokenCredential
}

var _ TokenProvider = (*AzureProvider)(nil)

// NewAzureProvider wraps an existing credential.
func NewAzureProvider(cred azcore.TokenCredential) *AzureProvider {
	return &AzureProvider{cred: cred}
}

// NewDefaultAzureProvider uses DefaultAzureCredential: environment, workload
// identity, managed identity and developer tool logins, in that order.
func NewDefaultAzureProvider() (*AzureProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	return NewAzureProvider(cred), nil
}

// NewManagedIdentityProvider uses the managed identity of the host. An empty
// clientID selects the system-assigned identity.
func NewManagedIdentityProvider(clientID string) (*AzureProvider, error) {
	opts := &azidentity.ManagedIdentityCredentialOptions{}
	if clientID != "" {
		opts.ID = azidentity.ClientID(clientID)
	}
	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	return NewAzureProvider(cred), nil
}

// FetchToken requests a token for resource. Every call goes to the credential.
func (p *AzureProvider) FetchToken(ctx context.Context, resource string) (Token, error) {
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{Scope(resource)},
	})
	if err != nil {
		return Token{}, &AuthError{Resource: resource, Err: err}
	}
	if tok.Token == "" {
		return Token{}, &AuthError{Resource: resource, Err: errEmptyToken}
	}
	return Token{Value: tok.Token, ExpiresOn: tok.ExpiresOn}, nil
}

// Scope turns a resource URI into the ".default" scope Entra expects.
func Scope(resource string) string {
	if strings.HasSuffix(resource, "/.default") {
		return resource
	}
	return strings.TrimSuffix(resource, "/") + "/.default"
}
