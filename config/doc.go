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


// Package config loads the pipeline configuration from YAML.
//
// Every field has a default, so an empty or missing file yields a usable
// configuration. Command-line flags override file values; see cmd/finextract.
//
// Example file:
//
//	workspace: ./data
//	store: csv
//	ai:
//	  backend: openai
//	  host: http://localhost:11434/v1
//	  generator_model: qwen2.5:7b
//	staging:
//	  chunk_size: 6500
//	  workers: 5
//	extraction:
//	  workers: 2
//	  context_mode: summary+sections
//	retry:
//	  max_attempts: 3
//	  base_delay: 1s
//	  call_timeout: 2m
package config
