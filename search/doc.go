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


// Package search is a vector index over staged chunks.
//
// An Index holds one chromem-go collection per document type, loaded from the
// staged tables with the embeddings that staging already computed, so
// building an index never calls the embedding service. Queries are embedded
// once and matched by cosine similarity.
//
// The index serves two callers: the extractor's retrieval context mode, which
// asks for the chunks of a single document nearest to a set of queries, and
// the search command, which ranks chunks across the whole corpus and boosts
// chunks that contain every query keyword.
package search
