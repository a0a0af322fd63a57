// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai provides abstractions for the model services used by finextract.
//
// Two services are needed by the pipeline: an Embedder that turns chunk text
// into vectors during staging, and a Generator that answers summarize and
// extract prompts. An AIProvider bundles both so they share configuration and
// lifecycle.
//
// # Implementation Packages
//
//   - ai/langchain: production implementation on langchaingo, talking to an
//     OpenAI-compatible endpoint or a native Ollama server
//   - ai/mock: test doubles with injectable behavior and call counters
//
// Public production constructors return interface types. Mock constructors
// return concrete types so tests can inject behavior and assert call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := langchain.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "Revenue was $4.49B")
//	out, err := provider.Generator().Generate(ctx, ai.Prompt{
//	    System:   "You are a financial analyst.",
//	    User:     "Summarize the following filing...",
//	    JSONMode: false,
//	})
package ai
