package player

import (
	"errors"
	"fmt"

	"Tunevault/model"
)

var (
	ErrUnknownAction  = errors.New("unknown player action")
	ErrMissingPayload = errors.New("missing payload for player action")
)

// Command 播放器动作的参数，不同动作使用不同字段
type Command struct {
	Volume     *float64     `json:"volume,omitempty"`
	Mode       PlayMode     `json:"mode,omitempty"`
	Song       *model.Song  `json:"song,omitempty"`
	Songs      []model.Song `json:"songs,omitempty"`
	Index      *int         `json:"index,omitempty"`
	PlaylistID string       `json:"playlistId,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Actions 支持的动作名
var Actions = []string{
	"play", "pause", "toggle", "next", "previous", "volume", "mode",
	"add", "select", "remove", "load", "clear", "error",
}

// Apply 对 store 执行一个动作并返回新的快照
func Apply(s *Store, action string, cmd Command) (State, error) {
	switch action {
	case "play":
		if cmd.Index != nil {
			return s.SetCurrentSongIndex(*cmd.Index), nil
		}
		return s.Play(), nil
	case "pause":
		return s.Pause(), nil
	case "toggle":
		return s.TogglePlay(), nil
	case "next":
		return s.PlayNext(), nil
	case "previous":
		return s.PlayPrevious(), nil
	case "volume":
		if cmd.Volume == nil {
			return s.Snapshot(), fmt.Errorf("%w: volume", ErrMissingPayload)
		}
		return s.SetVolume(*cmd.Volume), nil
	case "mode":
		return s.SetPlayMode(cmd.Mode)
	case "add":
		if cmd.Song == nil {
			return s.Snapshot(), fmt.Errorf("%w: song", ErrMissingPayload)
		}
		return s.AddToPlaylist(*cmd.Song), nil
	case "select":
		if cmd.Index == nil {
			return s.Snapshot(), fmt.Errorf("%w: index", ErrMissingPayload)
		}
		return s.SetCurrentSongIndex(*cmd.Index), nil
	case "remove":
		if cmd.Index == nil {
			return s.Snapshot(), fmt.Errorf("%w: index", ErrMissingPayload)
		}
		return s.RemoveSong(*cmd.Index), nil
	case "load":
		return s.LoadPlaylist(cmd.Songs, cmd.PlaylistID), nil
	case "clear":
		return s.ClearPlaylist(), nil
	case "error":
		return s.SetError(cmd.Error), nil
	default:
		return s.Snapshot(), fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}
