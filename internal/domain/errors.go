package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited signals that the uncached-pipeline concurrency cap was hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingTimeout signals that the embedding call exceeded its soft timeout.
	ErrEmbeddingTimeout = errors.New("embedding timeout")
	// ErrLLMProviderError signals an LLM provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrLLMTimeout signals that the LLM call exceeded its timeout.
	ErrLLMTimeout = errors.New("llm timeout")
	// ErrNoEmbeddings signals that the catalog has no embedded services at all.
	ErrNoEmbeddings = errors.New("no embeddings in database")
)
