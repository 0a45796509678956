// Package llm provides the fallback classifier used when no category rule
// matches a merchant. It wraps OpenAI and Anthropic chat APIs behind a
// narrow Client interface and bounds every call with a timeout, a shared
// concurrency gate, a rate limiter and a circuit breaker.
package llm
