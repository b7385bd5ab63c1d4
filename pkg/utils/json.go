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

package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractJSONObject pulls the first top-level JSON object out of free-form
// LLM output. Models routinely wrap JSON in prose or markdown fences, so the
// raw response is rarely decodable as-is.
func ExtractJSONObject(text string) (string, bool) {
	return extractDelimited(StripCodeFences(text), '{', '}')
}

// ExtractJSONArray pulls the first top-level JSON array out of free-form
// LLM output.
func ExtractJSONArray(text string) (string, bool) {
	return extractDelimited(StripCodeFences(text), '[', ']')
}

func extractDelimited(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		firstLine := strings.TrimSpace(trimmed[:idx])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// DecodeLoose unmarshals LLM-produced JSON into v, tolerating the usual
// formatting damage: it tries a strict decode first, then a repaired decode
// (trailing commas, single quotes, unquoted keys), then a decode of the
// first embedded object or array.
func DecodeLoose(text string, v any) error {
	candidate := StripCodeFences(text)

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	if obj, ok := ExtractJSONObject(candidate); ok {
		if err := json.Unmarshal([]byte(obj), v); err == nil {
			return nil
		}
		if repaired, err := jsonrepair.JSONRepair(obj); err == nil {
			if err := json.Unmarshal([]byte(repaired), v); err == nil {
				return nil
			}
		}
	}

	if arr, ok := ExtractJSONArray(candidate); ok {
		if err := json.Unmarshal([]byte(arr), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no decodable JSON in response (%d bytes)", len(text))
}
