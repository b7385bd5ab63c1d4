// Copyright 2025 The Dowser Authors
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

package store

import "fmt"

// maxQueryInError caps how much of a query is echoed into error text.
const maxQueryInError = 50

// RetrievalError wraps failures from the search and ingestion paths
// with enough context to tell which backend failed doing what.
type RetrievalError struct {
	// Backend is the failing component, such as "vector", "keyword"
	// or "embedder".
	Backend string

	// Op is the operation that failed.
	Op string

	// Query is the search query when the failure happened during a
	// search. It is truncated in the message to keep logs readable.
	Query string

	// Err is the underlying cause.
	Err error
}

// NewRetrievalError builds a RetrievalError.
func NewRetrievalError(backend, op, query string, err error) *RetrievalError {
	return &RetrievalError{Backend: backend, Op: op, Query: query, Err: err}
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	msg := fmt.Sprintf("[%s] %s failed", e.Backend, e.Op)
	if e.Query != "" {
		query := e.Query
		if len(query) > maxQueryInError {
			query = query[:maxQueryInError] + "..."
		}
		msg = fmt.Sprintf("%s (query: %q)", msg, query)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}
