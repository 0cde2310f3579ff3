// Package llm provides the OpenRouter chat client stations talk to.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Generate: send one prompt with a per-call model, token limit and
// temperature; returns the raw reply text.
// Client.ProcessMessage: follow-up exchange with the provider's default
// temperature.
// Client.HealthCheck: verify API key and model availability.
//
// Replies are returned verbatim. Extracting JSON from them is the caller's
// job (see package jsonextract).
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty replies and network
// timeouts with exponential backoff (base 1s, max 10s, up to 3 attempts by
// default), honouring Retry-After. Context cancellation aborts retries
// immediately. The final failure is tagged services.ErrTransport.
package llm
