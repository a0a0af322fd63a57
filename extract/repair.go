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

import "strings"

var smartQuotes = strings.NewReplacer("“", `"`, "”", `"`)

// repairJSON fixes common JSON slips in model output: unquoted or half-quoted
// keys, trailing commas and typographic quotes. Text inside string literals is
// left alone.
func repairJSON(s string) string {
	src := []rune(smartQuotes.Replace(s))
	fixed := make([]rune, 0, len(src)+32)

	inString := false
	for i := 0; i < len(src); i++ {
		ch := src[i]

		if inString {
			fixed = append(fixed, ch)
			if ch == '\\' && i+1 < len(src) {
				i++
				fixed = append(fixed, src[i])
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			fixed = append(fixed, ch)

		case ',':
			// Drop a comma that only precedes a closing bracket.
			j := skipSpace(src, i+1)
			if j < len(src) && (src[j] == '}' || src[j] == ']') {
				continue
			}
			fixed = append(fixed, ch)
			i = quoteKey(src, j, &fixed, i+1)

		case '{':
			fixed = append(fixed, ch)
			i = quoteKey(src, skipSpace(src, i+1), &fixed, i+1)

		default:
			fixed = append(fixed, ch)
		}
	}
	return string(fixed)
}

// quoteKey copies whitespace from `from` up to keyStart, then, if an unquoted
// key starts at keyStart, writes it quoted. It returns the index of the last
// rune consumed.
func quoteKey(src []rune, keyStart int, fixed *[]rune, from int) int {
	*fixed = append(*fixed, src[from:keyStart]...)
	if keyStart >= len(src) || !isKeyStart(src[keyStart]) {
		return keyStart - 1
	}

	end := keyStart
	for end < len(src) && isKeyRune(src[end]) {
		end++
	}
	key := strings.TrimSpace(string(src[keyStart:end]))

	switch {
	case end+1 < len(src) && src[end] == '"' && src[end+1] == ':':
		// key": -> "key":
		*fixed = append(*fixed, '"')
		*fixed = append(*fixed, []rune(key)...)
		*fixed = append(*fixed, '"')
		return end
	case end < len(src) && src[end] == ':':
		// key: -> "key":
		*fixed = append(*fixed, '"')
		*fixed = append(*fixed, []rune(key)...)
		*fixed = append(*fixed, '"')
		return end - 1
	}
	return keyStart - 1
}

func skipSpace(src []rune, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\n' || src[i] == '\t' || src[i] == '\r') {
		i++
	}
	return i
}

func isKeyStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isKeyRune(r rune) bool {
	return isKeyStart(r) || (r >= '0' && r <= '9') || r == ' '
}
