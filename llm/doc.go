// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package llm provides the provider abstraction shared by the OpenAI-compatible
HTTP client used to drive the research pipeline's Clarify/Analyze/Verify/
Report stages.

# Provider Interface

The core Provider interface defines the contract a model backend must
satisfy:

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    SupportsNativeFunctionCalling() bool
	    ListModels(ctx context.Context) ([]Model, error)
	}

# Error Handling

The package defines structured error codes and IsRetryable to check whether
an error returned by a provider can be retried:

	if llm.IsRetryable(err) {
	    // retry with backoff
	}

# Credential Overrides

WithCredentialOverride / CredentialOverrideFromContext let a single request
carry its own API key via context, bypassing the provider's configured
default — used when a caller supplies per-session credentials.

See the subpackages for the concrete client:
  - llm/providers: OpenAI-compatible request/response conversion and error
    mapping shared across HTTP-based providers.
  - llm/providers/openaicompat: the generic OpenAI-compatible HTTP client.
  - llm/middleware: request rewriters applied before a request is sent.
*/
package llm
