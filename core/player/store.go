// Package player holds the playback state of a user: the queue, the
// current song, status, volume and play mode. Every change is pushed to
// subscribers as a snapshot.
package player

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"Tunevault/model"
)

// StatusType 播放状态
type StatusType string

const (
	StatusIdle    StatusType = "idle"
	StatusPlaying StatusType = "playing"
	StatusPaused  StatusType = "paused"
	StatusError   StatusType = "error"
)

// PlayMode 播放模式
type PlayMode string

const (
	ModeStandard PlayMode = "standard"
	ModeRepeat   PlayMode = "repeat"
	ModeShuffle  PlayMode = "shuffle"
)

const DefaultVolume = 0.5

var (
	ErrInvalidStatus = errors.New("invalid player status")
	ErrInvalidMode   = errors.New("invalid play mode")
)

// Status 当前状态；playing/paused 带歌曲，error 带错误信息
type Status struct {
	Type  StatusType  `json:"type"`
	Song  *model.Song `json:"song,omitempty"`
	Error string      `json:"error,omitempty"`
}

func idle() Status { return Status{Type: StatusIdle} }

func playing(s model.Song) Status { return Status{Type: StatusPlaying, Song: &s} }

func paused(s model.Song) Status { return Status{Type: StatusPaused, Song: &s} }

// Validate checks that the status carries what its type requires.
func (s Status) Validate() error {
	switch s.Type {
	case StatusIdle:
		return nil
	case StatusPlaying, StatusPaused:
		if s.Song == nil {
			return ErrInvalidStatus
		}
		return nil
	case StatusError:
		return nil
	default:
		return ErrInvalidStatus
	}
}

// ValidMode reports whether m is a known play mode.
func ValidMode(m PlayMode) bool {
	return m == ModeStandard || m == ModeRepeat || m == ModeShuffle
}

// State 播放器完整状态
type State struct {
	Status            Status       `json:"status"`
	Volume            float64      `json:"volume"`
	Playlist          []model.Song `json:"playlist"`
	CurrentSongIndex  int          `json:"currentSongIndex"`
	CurrentPlaylistID string       `json:"currentPlaylistId,omitempty"`
	PlayMode          PlayMode     `json:"playMode"`
	ShuffledIndices   []int        `json:"shuffledIndices"`
}

// InitialState 空播放器
func InitialState() State {
	return State{
		Status:          idle(),
		Volume:          DefaultVolume,
		Playlist:        []model.Song{},
		PlayMode:        ModeStandard,
		ShuffledIndices: []int{},
	}
}

func (s State) clone() State {
	c := s
	c.Playlist = append([]model.Song{}, s.Playlist...)
	c.ShuffledIndices = append([]int{}, s.ShuffledIndices...)
	if s.Status.Song != nil {
		song := *s.Status.Song
		c.Status.Song = &song
	}
	return c
}

// CurrentSong returns the song at CurrentSongIndex, if any.
func (s State) CurrentSong() (model.Song, bool) {
	if s.CurrentSongIndex < 0 || s.CurrentSongIndex >= len(s.Playlist) {
		return model.Song{}, false
	}
	return s.Playlist[s.CurrentSongIndex], true
}

// Store 并发安全的播放器状态，订阅者在每次变更后收到快照。
// 订阅回调在持有锁时执行，回调里不能再调用 Store 的方法。
type Store struct {
	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
	shuffle func(n int, swap func(i, j int))
}

// NewStore creates a store in the initial state.
func NewStore() *Store {
	return NewStoreFrom(InitialState())
}

// NewStoreFrom creates a store from a saved snapshot, repairing fields
// that are out of range.
func NewStoreFrom(st State) *Store {
	s := &Store{
		state:   sanitize(st),
		subs:    make(map[int]func(State)),
		shuffle: rand.Shuffle,
	}
	return s
}

func sanitize(st State) State {
	st = st.clone()
	if st.Playlist == nil {
		st.Playlist = []model.Song{}
	}
	if st.Status.Validate() != nil {
		st.Status = idle()
	}
	st.Volume = clampVolume(st.Volume)
	if !ValidMode(st.PlayMode) {
		st.PlayMode = ModeStandard
	}
	if st.CurrentSongIndex < 0 || st.CurrentSongIndex >= len(st.Playlist) {
		st.CurrentSongIndex = 0
	}
	if !isPermutation(st.ShuffledIndices, len(st.Playlist)) {
		st.ShuffledIndices = []int{}
	}
	return st
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultVolume
	}
	return math.Max(0, math.Min(1, v))
}

func isPermutation(idx []int, n int) bool {
	if len(idx) != n {
		return false
	}
	seen := make([]bool, n)
	for _, i := range idx {
		if i < 0 || i >= n || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every change and returns the function that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// update 在锁内修改状态；fn 返回 false 表示没有变化，不通知订阅者
func (s *Store) update(fn func(st *State) bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn(&s.state) {
		return s.state.clone()
	}
	snap := s.state.clone()
	for _, sub := range s.subs {
		sub(snap.clone())
	}
	return snap
}

// shuffledOrder Fisher-Yates 随机排列 0..n-1
func (s *Store) shuffledOrder(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s.shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}

// SetStatus 直接设置状态
func (s *Store) SetStatus(status Status) (State, error) {
	if err := status.Validate(); err != nil {
		return s.Snapshot(), err
	}
	return s.update(func(st *State) bool {
		st.Status = status
		if status.Song != nil {
			song := *status.Song
			st.Status.Song = &song
		}
		return true
	}), nil
}

// SetError 进入错误状态
func (s *Store) SetError(message string) State {
	st, _ := s.SetStatus(Status{Type: StatusError, Error: message})
	return st
}

// SetVolume 音量限制在 0..1
func (s *Store) SetVolume(v float64) State {
	return s.update(func(st *State) bool {
		st.Volume = clampVolume(v)
		return true
	})
}

// AddToPlaylist 追加歌曲；队列原本为空时立即播放
func (s *Store) AddToPlaylist(song model.Song) State {
	return s.update(func(st *State) bool {
		wasEmpty := len(st.Playlist) == 0
		st.Playlist = append(st.Playlist, song)
		if wasEmpty {
			st.CurrentSongIndex = 0
			st.Status = playing(song)
		}
		if st.PlayMode == ModeShuffle {
			st.ShuffledIndices = s.shuffledOrder(len(st.Playlist))
		}
		return true
	})
}

// SetCurrentSongIndex 播放指定位置，越界时忽略
func (s *Store) SetCurrentSongIndex(index int) State {
	return s.update(func(st *State) bool {
		if index < 0 || index >= len(st.Playlist) {
			return false
		}
		st.CurrentSongIndex = index
		st.Status = playing(st.Playlist[index])
		return true
	})
}

// ClearPlaylist 清空队列
func (s *Store) ClearPlaylist() State {
	return s.update(func(st *State) bool {
		st.Playlist = []model.Song{}
		st.CurrentSongIndex = 0
		st.Status = idle()
		st.CurrentPlaylistID = ""
		st.ShuffledIndices = []int{}
		return true
	})
}

// LoadPlaylist 替换队列并从第一首开始播放，空列表忽略
func (s *Store) LoadPlaylist(songs []model.Song, playlistID string) State {
	return s.update(func(st *State) bool {
		if len(songs) == 0 {
			return false
		}
		st.Playlist = append([]model.Song{}, songs...)
		st.CurrentPlaylistID = playlistID
		st.CurrentSongIndex = 0
		st.Status = playing(st.Playlist[0])
		st.ShuffledIndices = s.shuffledOrder(len(st.Playlist))
		return true
	})
}

// shufflePosition 当前歌曲在随机顺序中的位置，顺序失效时重新生成
func (s *Store) shufflePosition(st *State) int {
	if !isPermutation(st.ShuffledIndices, len(st.Playlist)) {
		st.ShuffledIndices = s.shuffledOrder(len(st.Playlist))
	}
	for pos, i := range st.ShuffledIndices {
		if i == st.CurrentSongIndex {
			return pos
		}
	}
	return -1
}

// PlayNext 按播放模式切到下一首
func (s *Store) PlayNext() State {
	return s.update(func(st *State) bool {
		n := len(st.Playlist)
		if n == 0 {
			return false
		}
		var next int
		switch st.PlayMode {
		case ModeRepeat:
			next = (st.CurrentSongIndex + 1) % n
		case ModeShuffle:
			pos := s.shufflePosition(st)
			next = st.ShuffledIndices[(pos+1)%n]
		default:
			next = st.CurrentSongIndex + 1
			if next >= n {
				// 标准模式播放到末尾后停止
				st.Status = idle()
				st.CurrentSongIndex = 0
				return true
			}
		}
		st.CurrentSongIndex = next
		st.Status = playing(st.Playlist[next])
		return true
	})
}

// PlayPrevious 按播放模式切到上一首
func (s *Store) PlayPrevious() State {
	return s.update(func(st *State) bool {
		n := len(st.Playlist)
		if n == 0 {
			return false
		}
		var prev int
		switch st.PlayMode {
		case ModeShuffle:
			pos := s.shufflePosition(st)
			if pos < 0 {
				pos = 0
			}
			prev = st.ShuffledIndices[(pos-1+n)%n]
		default:
			prev = st.CurrentSongIndex - 1
			if prev < 0 {
				if st.PlayMode == ModeRepeat {
					prev = n - 1
				} else {
					prev = 0
				}
			}
		}
		st.CurrentSongIndex = prev
		st.Status = playing(st.Playlist[prev])
		return true
	})
}

// SetPlayMode 切换模式；切到随机模式时重新生成随机顺序
func (s *Store) SetPlayMode(mode PlayMode) (State, error) {
	if !ValidMode(mode) {
		return s.Snapshot(), ErrInvalidMode
	}
	return s.update(func(st *State) bool {
		st.PlayMode = mode
		if mode == ModeShuffle {
			st.ShuffledIndices = s.shuffledOrder(len(st.Playlist))
		}
		return true
	}), nil
}

// RemoveSong 删除队列中的一首，越界时忽略
func (s *Store) RemoveSong(index int) State {
	return s.update(func(st *State) bool {
		if index < 0 || index >= len(st.Playlist) {
			return false
		}
		st.Playlist = append(st.Playlist[:index:index], st.Playlist[index+1:]...)
		if len(st.Playlist) == 0 {
			st.CurrentSongIndex = 0
			st.Status = idle()
			st.ShuffledIndices = []int{}
			return true
		}

		switch {
		case index == st.CurrentSongIndex:
			// 删除的是当前歌曲，播放现在处于该位置的歌
			if st.CurrentSongIndex >= len(st.Playlist) {
				st.CurrentSongIndex = len(st.Playlist) - 1
			}
			st.Status = playing(st.Playlist[st.CurrentSongIndex])
		case index < st.CurrentSongIndex:
			st.CurrentSongIndex--
		}

		if st.PlayMode == ModeShuffle {
			st.ShuffledIndices = s.shuffledOrder(len(st.Playlist))
		}
		return true
	})
}

// TogglePlay 播放/暂停切换；空闲或出错时从当前歌曲开始播放
func (s *Store) TogglePlay() State {
	return s.update(func(st *State) bool {
		switch st.Status.Type {
		case StatusPlaying:
			st.Status = paused(*st.Status.Song)
			return true
		case StatusPaused:
			st.Status = playing(*st.Status.Song)
			return true
		default:
			song, ok := st.CurrentSong()
			if !ok {
				return false
			}
			st.Status = playing(song)
			return true
		}
	})
}

// Play 继续播放当前歌曲
func (s *Store) Play() State {
	return s.update(func(st *State) bool {
		if st.Status.Type == StatusPaused {
			st.Status = playing(*st.Status.Song)
			return true
		}
		if st.Status.Type == StatusPlaying {
			return false
		}
		song, ok := st.CurrentSong()
		if !ok {
			return false
		}
		st.Status = playing(song)
		return true
	})
}

// Pause 暂停，只有正在播放时生效
func (s *Store) Pause() State {
	return s.update(func(st *State) bool {
		if st.Status.Type != StatusPlaying {
			return false
		}
		st.Status = paused(*st.Status.Song)
		return true
	})
}
