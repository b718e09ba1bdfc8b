package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"studylens-backend/internal/models"
)

// NormalizeTranscriptBody decodes one provider response into a result. It
// returns nil when the body holds no usable captions for videoID.
func NormalizeTranscriptBody(body []byte, videoID string) (*models.TranscriptResult, error) {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode transcript response: %w", err)
	}

	entry := locateEntry(decoded, videoID)
	if entry == nil {
		return nil, nil
	}
	result := extractCaptions(entry)
	if !result.HasContent() {
		return nil, nil
	}
	return result, nil
}

// locateEntry probes the response shapes the provider is known to return:
// a bare array, {transcripts:[]}, {data:[]}, a map keyed by video id, or a
// single object.
func locateEntry(body interface{}, videoID string) interface{} {
	switch v := body.(type) {
	case []interface{}:
		return findEntry(v, videoID)
	case map[string]interface{}:
		if list, ok := v["transcripts"].([]interface{}); ok {
			return findEntry(list, videoID)
		}
		if list, ok := v["data"].([]interface{}); ok {
			return findEntry(list, videoID)
		}
		if byID, ok := v[videoID]; ok && truthy(byID) {
			return byID
		}
		return v
	case string:
		return v
	}
	return nil
}

// findEntry returns the element whose id matches videoID, else the first.
func findEntry(list []interface{}, videoID string) interface{} {
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range []string{"id", "videoId", "youtubeId"} {
			if id, ok := m[key]; ok && truthy(id) {
				if fmt.Sprint(id) == videoID {
					return item
				}
				break
			}
		}
	}
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	}
	return true
}

// extractCaptions applies the extraction precedence: segments array, flat
// text, transcript array, raw string. The first form with content wins.
func extractCaptions(entry interface{}) *models.TranscriptResult {
	if s, ok := entry.(string); ok {
		if text := strings.TrimSpace(s); text != "" {
			return &models.TranscriptResult{TranscriptText: &text}
		}
		return nil
	}

	m, ok := entry.(map[string]interface{})
	if !ok {
		return nil
	}

	if raw, ok := m["segments"].([]interface{}); ok && len(raw) > 0 {
		if segs := toSegments(raw); len(segs) > 0 {
			return fromSegments(segs)
		}
	}

	if s, ok := m["text"].(string); ok {
		if text := strings.TrimSpace(s); text != "" {
			return &models.TranscriptResult{TranscriptText: &text}
		}
	}

	if raw, ok := m["transcript"].([]interface{}); ok && len(raw) > 0 {
		if segs := toSegments(raw); len(segs) > 0 {
			return fromSegments(segs)
		}
	}

	return nil
}

func fromSegments(segs []models.TranscriptSegment) *models.TranscriptResult {
	pieces := make([]string, len(segs))
	for i, s := range segs {
		pieces[i] = s.Text
	}
	result := &models.TranscriptResult{Segments: segs}
	if text := ReconstructProse(pieces); text != "" {
		result.TranscriptText = &text
	}
	return result
}

// toSegments maps raw caption pieces, dropping those without text.
func toSegments(raw []interface{}) []models.TranscriptSegment {
	segs := make([]models.TranscriptSegment, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text := firstString(m, "text", "caption")
		if text == "" {
			continue
		}
		seg := models.TranscriptSegment{Text: text}
		if start := firstNumber(m, "start", "offset"); start != nil {
			seg.Start = start
		}
		seg.Duration = firstNumber(m, "duration")
		segs = append(segs, seg)
	}
	return segs
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstNumber(m map[string]interface{}, keys ...string) *float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return &v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ReconstructProse turns caption fragments into punctuated sentences.
func ReconstructProse(pieces []string) string {
	punctuated := make([]string, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.ContainsAny(p[len(p)-1:], ".?!,;:") {
			p += "."
		}
		punctuated = append(punctuated, p)
	}

	joined := strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.Join(punctuated, " "), " "))
	if joined == "" {
		return ""
	}

	var sentences []string
	for _, s := range strings.Split(joined, ". ") {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, capitalize(s))
		}
	}
	out := strings.Join(sentences, ". ")
	if out != "" && !strings.ContainsAny(out[len(out)-1:], ".?!") {
		out += "."
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
