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

package extract

import "errors"

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrInvalidContextMode indicates an unknown ContextMode.
	ErrInvalidContextMode = errors.New("invalid context mode")

	// ErrRetrieverRequired is returned when ContextRetrieval is selected
	// without a Retriever.
	ErrRetrieverRequired = errors.New("retriever required for retrieval context")

	// ErrNotJSONObject indicates a response that could not be read as a JSON object.
	ErrNotJSONObject = errors.New("response is not a JSON object")

	// ErrInvalidRequest indicates a request without a file name or summary.
	ErrInvalidRequest = errors.New("invalid extraction request")
)
