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


// Package orchestrator drives extraction over a staged table.
//
// Each document assembled from the staged table moves through
// Pending, Summarizing and Extracting before ending Written or Failed. A
// bounded worker pool runs documents concurrently; a failed document never
// affects the others. Records are appended to the output table as soon as
// each document finishes, so an interrupted run loses no completed work, and
// a rerun skips every file already present in the output table.
package orchestrator
