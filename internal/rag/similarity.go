package rag

import (
	"math"
	"sort"

	"canticle/api/internal/store"
)

// Match is one scored song from a theme search.
type Match struct {
	SongID     int64   `json:"id"`
	FirstLine  string  `json:"first_line"`
	Themes     string  `json:"themes"`
	MatchScore float64 `json:"match_score"`
}

// MatchScore converts a cosine distance into a 0..100 score with one decimal
// place.
func MatchScore(query, candidate []float64) float64 {
	similarity := 1 - cosineDistance(query, candidate)
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return math.Round(similarity*1000) / 10
}

func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// RankMatches scores every candidate row against the query embedding and
// returns the best matches, highest score first. A nil minScore keeps all.
func RankMatches(query []float64, rows []store.ThemeEmbeddingRow, topK int, minScore *float64) []Match {
	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		score := MatchScore(query, row.Embedding)
		if minScore != nil && score < *minScore {
			continue
		}
		matches = append(matches, Match{
			SongID:     row.SongID,
			FirstLine:  row.FirstLine,
			Themes:     row.Themes,
			MatchScore: score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].MatchScore > matches[j].MatchScore })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
