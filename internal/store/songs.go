package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// songFilterSQL renders f as WHERE clauses against the songs table, appending
// bind values to args. The returned clauses assume the songs table is aliased
// as s.
func songFilterSQL(f SongFilter, args *[]any) []string {
	var clauses []string
	if f.SongKey != nil {
		*args = append(*args, *f.SongKey)
		clauses = append(clauses, fmt.Sprintf("s.song_key = $%d", len(*args)))
	}
	switch f.SongType {
	case "song":
		clauses = append(clauses, "s.is_hymn = FALSE")
	case "hymn":
		clauses = append(clauses, "s.is_hymn = TRUE")
	}
	if f.Lyric != "" {
		*args = append(*args, "%"+f.Lyric+"%")
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM song_lyrics sl WHERE sl.song_id = s.id AND sl.content ILIKE $%d)", len(*args)))
	}
	return clauses
}

func (s *PostgresStore) ListSongs(ctx context.Context, f SongFilter) ([]Song, error) {
	var args []any
	query := `SELECT s.id, s.first_line, s.song_key, s.is_hymn, s.copyright, s.author, s.duration FROM songs s`
	if clauses := songFilterSQL(f, &args); len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY s.first_line ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var song Song
		if err := rows.Scan(&song.ID, &song.FirstLine, &song.SongKey, &song.IsHymn, &song.Copyright, &song.Author, &song.Duration); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

func (s *PostgresStore) GetSong(ctx context.Context, id int64) (SongDetails, error) {
	var details SongDetails
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_line, song_key, is_hymn, copyright, author, duration
		FROM songs WHERE id=$1
	`, id).Scan(&details.ID, &details.FirstLine, &details.SongKey, &details.IsHymn, &details.Copyright, &details.Author, &details.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return SongDetails{}, ErrNotFound
	}
	if err != nil {
		return SongDetails{}, fmt.Errorf("lookup song: %w", err)
	}

	var lyrics SongLyrics
	err = s.db.QueryRowContext(ctx, `SELECT id, song_id, content FROM song_lyrics WHERE song_id=$1`, id).
		Scan(&lyrics.ID, &lyrics.SongID, &lyrics.Content)
	if err == nil {
		details.Lyrics = &lyrics
	} else if !errors.Is(err, sql.ErrNoRows) {
		return SongDetails{}, fmt.Errorf("lookup lyrics: %w", err)
	}

	var res SongResources
	err = s.db.QueryRowContext(ctx, `
		SELECT id, song_id, sheet_music, harmony_vid, harmony_pdf, harmony_ms
		FROM song_resources WHERE song_id=$1
	`, id).Scan(&res.ID, &res.SongID, &res.SheetMusic, &res.HarmonyVid, &res.HarmonyPDF, &res.HarmonyMS)
	if err == nil {
		details.Resources = &res
	} else if !errors.Is(err, sql.ErrNoRows) {
		return SongDetails{}, fmt.Errorf("lookup resources: %w", err)
	}

	return details, nil
}

func (s *PostgresStore) SongExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM songs WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check song: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateSong(ctx context.Context, song Song) (Song, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO songs (first_line, song_key, is_hymn, copyright, author, duration)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, song.FirstLine, song.SongKey, song.IsHymn, song.Copyright, song.Author, song.Duration).Scan(&song.ID)
	if err != nil {
		return Song{}, fmt.Errorf("insert song: %w", err)
	}
	return song, nil
}

func (s *PostgresStore) UpdateSong(ctx context.Context, song Song) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE songs
		SET first_line=$2, song_key=$3, is_hymn=$4, copyright=$5, author=$6, duration=$7
		WHERE id=$1
	`, song.ID, song.FirstLine, song.SongKey, song.IsHymn, song.Copyright, song.Author, song.Duration)
	if err != nil {
		return fmt.Errorf("update song: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSong(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete song: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertLyrics(ctx context.Context, songID int64, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO song_lyrics (song_id, content) VALUES ($1, $2)
		ON CONFLICT (song_id) DO UPDATE SET content=EXCLUDED.content
	`, songID, content)
	if err != nil {
		return fmt.Errorf("upsert lyrics: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertResources(ctx context.Context, res SongResources) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO song_resources (song_id, sheet_music, harmony_vid, harmony_pdf, harmony_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (song_id) DO UPDATE SET
			sheet_music=EXCLUDED.sheet_music,
			harmony_vid=EXCLUDED.harmony_vid,
			harmony_pdf=EXCLUDED.harmony_pdf,
			harmony_ms=EXCLUDED.harmony_ms
	`, res.SongID, res.SheetMusic, res.HarmonyVid, res.HarmonyPDF, res.HarmonyMS)
	if err != nil {
		return fmt.Errorf("upsert resources: %w", err)
	}
	return nil
}

// UpsertThemes replaces the themes text and embedding attached to a song's
// lyrics. The embedding is stored as a JSON array so no vector extension is
// required.
func (s *PostgresStore) UpsertThemes(ctx context.Context, songID int64, content string, embedding []float64) error {
	var lyricsID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM song_lyrics WHERE song_id=$1`, songID).Scan(&lyricsID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup lyrics: %w", err)
	}

	encoded, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin themes tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var themesID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO song_themes (song_lyrics_id, content) VALUES ($1, $2)
		ON CONFLICT (song_lyrics_id) DO UPDATE SET content=EXCLUDED.content
		RETURNING id
	`, lyricsID, content).Scan(&themesID)
	if err != nil {
		return fmt.Errorf("upsert themes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO song_theme_embeddings (song_themes_id, embedding) VALUES ($1, $2)
		ON CONFLICT (song_themes_id) DO UPDATE SET embedding=EXCLUDED.embedding
	`, themesID, string(encoded)); err != nil {
		return fmt.Errorf("upsert theme embedding: %w", err)
	}

	return tx.Commit()
}

// UpsertLyricEmbedding stores the embedding of a song's full lyrics text.
func (s *PostgresStore) UpsertLyricEmbedding(ctx context.Context, songID int64, embedding []float64) error {
	var lyricsID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM song_lyrics WHERE song_id=$1`, songID).Scan(&lyricsID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup lyrics: %w", err)
	}

	encoded, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO song_lyric_embeddings (song_lyrics_id, embedding) VALUES ($1, $2)
		ON CONFLICT (song_lyrics_id) DO UPDATE SET embedding=EXCLUDED.embedding
	`, lyricsID, string(encoded)); err != nil {
		return fmt.Errorf("upsert lyric embedding: %w", err)
	}
	return nil
}

// ListThemeEmbeddings loads every stored theme embedding joined back to its
// song. Rows with embeddings that fail to decode are skipped.
func (s *PostgresStore) ListThemeEmbeddings(ctx context.Context) ([]ThemeEmbeddingRow, error) {
	return s.listEmbeddings(ctx, `
		SELECT s.id, s.first_line, st.content, ste.embedding
		FROM song_theme_embeddings ste
		JOIN song_themes st ON st.id = ste.song_themes_id
		JOIN song_lyrics sl ON sl.id = st.song_lyrics_id
		JOIN songs s ON s.id = sl.song_id
	`)
}

// ListLyricEmbeddings is the lyric counterpart of ListThemeEmbeddings. Songs
// without generated themes still appear, with an empty themes string.
func (s *PostgresStore) ListLyricEmbeddings(ctx context.Context) ([]ThemeEmbeddingRow, error) {
	return s.listEmbeddings(ctx, `
		SELECT s.id, s.first_line, COALESCE(st.content, ''), sle.embedding
		FROM song_lyric_embeddings sle
		JOIN song_lyrics sl ON sl.id = sle.song_lyrics_id
		JOIN songs s ON s.id = sl.song_id
		LEFT JOIN song_themes st ON st.song_lyrics_id = sl.id
	`)
}

func (s *PostgresStore) listEmbeddings(ctx context.Context, query string) ([]ThemeEmbeddingRow, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var result []ThemeEmbeddingRow
	for rows.Next() {
		var row ThemeEmbeddingRow
		var encoded string
		if err := rows.Scan(&row.SongID, &row.FirstLine, &row.Themes, &encoded); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &row.Embedding); err != nil {
			continue
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
