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

package storage

import "errors"

var (
	// ErrNotFound indicates that the requested row was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a row with the same key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrManifestConflict indicates a manifest already exists with different contents.
	ErrManifestConflict = errors.New("manifest conflict")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrCorruptTable indicates a table file could not be parsed.
	ErrCorruptTable = errors.New("corrupt table")

	// ErrDocTypeMismatch indicates a row of one document type was sent to a table of another.
	ErrDocTypeMismatch = errors.New("document type mismatch")
)
