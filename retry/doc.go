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

// Package retry provides bounded exponential backoff for calls to remote
// collaborators.
//
// A Policy describes the attempt budget, the backoff curve and an optional
// per-call timeout. Do runs an operation under a Policy; each attempt gets its
// own context derived from the caller's, so a slow call times out and is
// retried like any other service error.
//
//	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, CallTimeout: time.Minute}
//	err := retry.Do(ctx, policy, func(ctx context.Context) error {
//	    vec, err = embedder.EmbedText(ctx, text)
//	    return err
//	})
//
// Wrap an error with Permanent to stop retrying immediately.
package retry
