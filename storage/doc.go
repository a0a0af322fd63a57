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

// Package storage provides the table abstractions the pipeline persists to.
//
// Three tables are involved. A StagedTable holds the append-only chunk rows
// (file_name, chunk_index, chunk_text, embedding) plus one manifest per
// document. An OutputTable holds one structured record per document. A
// SummaryCache optionally keeps finished document summaries so a rerun does
// not pay for them twice.
//
// # Backends
//
//   - storage/csvfile: plain CSV files on disk, the default interchange format
//   - storage/badger: a BadgerDB key-value store, with an in-memory mode for tests
//
// Both backends are reached through the Store interface, one table per
// document type:
//
//	store, err := csvfile.Open("data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	staged, err := store.StagedTable(core.DocTypeFiling)
//
// # Thread Safety
//
// All table implementations are safe for concurrent use. Appends are atomic at
// row level: a row is either fully written or not written at all.
package storage
