package model

// Song 播放器里的一首歌，只存在于播放器状态中
type Song struct {
	ID       string  `json:"id,omitempty"`
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Duration float64 `json:"duration,omitempty"`
	CoverArt string  `json:"coverArt,omitempty"`
}

// SongFromMusicFile converts a library record into a player song.
func SongFromMusicFile(f *MusicFile) Song {
	return Song{
		ID:       f.ID,
		URL:      f.URL,
		Title:    f.Title,
		Artist:   f.Artist,
		Duration: f.Duration,
		CoverArt: f.CoverArt,
	}
}
