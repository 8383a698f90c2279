// Package embedder turns profile and query text into unit-length vectors.
//
// Providers:
//   - local: offline signed feature hashing (384 dimensions, model local-hash-v1)
//   - openai: OpenAI /embeddings via go-openai (text-embedding-3-small, 1536)
//   - jina: Jina AI's OpenAI-compatible endpoint (jina-embeddings-v3, 1024)
//   - ollama: a local Ollama server via langchaingo (nomic-embed-text)
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 1000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "logo designer with branding experience",
//	})
//
// # Provider Selection
//
// NewFromEnv selects a provider from the environment:
//
//  1. If GIGSEARCH_EMBEDDING_PROVIDER is set, use it
//  2. Else if JINA_API_KEY is set, use Jina AI
//  3. Else if OPENAI_API_KEY is set, use OpenAI
//  4. Else fall back to the local provider
//
// # Identity
//
// Vectors are only comparable within one Identity (provider, model, dimension).
// The semantic index persists the identity beside its vectors and refuses to
// mix identities.
//
// # Caching and Retry
//
// Providers share an in-memory LRU Cache keyed by model and text. Remote calls
// retry with exponential backoff. Client errors other than 408 and 429 are not
// retried, and a done context stops the loop.
// Instrumented adds Prometheus counters and latency histograms.
package embedder
