package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        int64  `json:"id"`
	FirstLine string `json:"first_line"`
	Snippet   string `json:"snippet"`
	Author    string `json:"author,omitempty"`
	IsHymn    bool   `json:"is_hymn"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over the song catalog.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// SongRecord is the data we index per song.
type SongRecord struct {
	ID        int64  `json:"id"`
	FirstLine string `json:"firstLine"`
	Author    string `json:"author"`
	IsHymn    bool   `json:"isHymn"`
	Lyrics    string `json:"lyrics"`
}
