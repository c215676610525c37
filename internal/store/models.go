package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         int
	NetworkID    *int64
	CreatedAt    time.Time
}

type Network struct {
	ID   int64
	Name string
}

type Church struct {
	ID        int64
	NetworkID int64
	Name      string
	Slug      string
}

const (
	ActivityTypeService = 0
	ActivityTypeOther   = 1
)

type ChurchActivity struct {
	ID       int64
	ChurchID int64
	Name     string
	Slug     string
	Type     int
}

type Song struct {
	ID        int64
	FirstLine string
	SongKey   *string
	IsHymn    bool
	Copyright *string
	Author    *string
	Duration  int
}

type SongLyrics struct {
	ID      int64
	SongID  int64
	Content string
}

type SongResources struct {
	ID         int64
	SongID     int64
	SheetMusic *string
	HarmonyVid *string
	HarmonyPDF *string
	HarmonyMS  *string
}

// SongDetails bundles a song with its optional lyrics and resources rows.
type SongDetails struct {
	Song
	Lyrics    *SongLyrics
	Resources *SongResources
}

type SongUsage struct {
	ID               int64
	SongID           int64
	UsedDate         time.Time
	ChurchActivityID int64
}

type SongUsageStats struct {
	SongID           int64
	ChurchActivityID int64
	FirstUsed        time.Time
	LastUsed         time.Time
}

type SongThemes struct {
	ID           int64
	SongLyricsID int64
	Content      string
}

// ThemeEmbeddingRow carries everything needed to score one song against a
// query embedding.
type ThemeEmbeddingRow struct {
	SongID    int64
	FirstLine string
	Themes    string
	Embedding []float64
}

// SongFilter narrows song listings by catalog attributes.
type SongFilter struct {
	SongKey  *string
	SongType string // "", "song" or "hymn"
	Lyric    string // case-insensitive substring of lyrics content
}

// UsageFilter narrows usage rows to a set of activities and a date window.
// ActivityIDs must already be the effective (access-checked) set.
type UsageFilter struct {
	ActivityIDs []int64
	FromDate    time.Time
	ToDate      time.Time
}

// StatsFilter narrows usage-stats rows to a set of activities.
type StatsFilter struct {
	ActivityIDs []int64
}

type ActivityUsageRow struct {
	SongID           int64
	ChurchActivityID int64
	UsageCount       int
}

type TotalUsageRow struct {
	SongID     int64
	UsageCount int
}

type ActivityTotalsRow struct {
	ChurchActivityID   int64
	ChurchActivityName string
	TotalCount         int
	UniqueCount        int
}
