package server

import (
	"context"
	"encoding/json"
	"net/http"

	"Tunevault/core/player"
	"Tunevault/logger"
	"Tunevault/model"

	"github.com/gorilla/mux"
)

// applyPlayerAction 执行一个播放器动作。load 只带 playlistId 时从歌单解析歌曲。
func (h *APIHandler) applyPlayerAction(ctx context.Context, userID, action string, cmd player.Command) (player.State, error) {
	if action == "load" && len(cmd.Songs) == 0 && cmd.PlaylistID != "" {
		files, err := h.playlists.Songs(ctx, userID, cmd.PlaylistID)
		if err != nil {
			return player.State{}, err
		}
		cmd.Songs = make([]model.Song, 0, len(files))
		for _, f := range files {
			cmd.Songs = append(cmd.Songs, model.SongFromMusicFile(f))
		}
	}
	return player.Apply(h.players.Get(ctx, userID), action, cmd)
}

// PlayerStateHandler 当前播放器状态
func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.players.Snapshot(r.Context(), userID))
}

// PlayerActionHandler POST /api/player/{action}，请求体为动作参数（可为空）
func (h *APIHandler) PlayerActionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var cmd player.Command
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &cmd) {
			return
		}
	}

	st, err := h.applyPlayerAction(r.Context(), userID, mux.Vars(r)["action"], cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PlayerWSHandler 播放器状态推送。连接后先收到一条 sync，之后每次状态变化都会推送；
// 客户端发送 {"type":"action","action":"next","data":{...}} 执行动作。
func (h *APIHandler) PlayerWSHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[PlayerWS] websocket 升级失败", logger.ErrorField(err))
		return
	}

	client := player.NewClient(h.hub, conn, userID)
	h.hub.Register(client)
	logger.Info("[PlayerWS] 客户端已连接",
		logger.String("userId", userID),
		logger.Int("clients", h.hub.ClientCount(userID)))

	// 连接的生命周期独立于请求
	ctx := context.Background()
	if payload, err := json.Marshal(h.players.Snapshot(ctx, userID)); err == nil {
		client.SendMessage(&player.WSMessage{Type: player.MsgTypeSync, Data: payload})
	}

	go client.WritePump()
	client.ReadPump(ctx, h.handlePlayerMessage)
}

func (h *APIHandler) handlePlayerMessage(ctx context.Context, c *player.Client, msg *player.WSMessage) {
	switch msg.Type {
	case player.MsgTypeAction:
		var cmd player.Command
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &cmd); err != nil {
				c.SendMessage(&player.WSMessage{Type: player.MsgTypeError, Action: msg.Action, Error: "invalid action payload"})
				return
			}
		}
		// 成功时新状态通过 hub 广播给该用户的所有连接
		if _, err := h.applyPlayerAction(ctx, c.UserID, msg.Action, cmd); err != nil {
			logger.Debug("[PlayerWS] 动作执行失败",
				logger.String("userId", c.UserID),
				logger.String("action", msg.Action),
				logger.ErrorField(err))
			c.SendMessage(&player.WSMessage{Type: player.MsgTypeError, Action: msg.Action, Error: err.Error()})
		}
	case player.MsgTypeSync:
		payload, err := json.Marshal(h.players.Snapshot(ctx, c.UserID))
		if err != nil {
			return
		}
		c.SendMessage(&player.WSMessage{Type: player.MsgTypeSync, Data: payload})
	default:
		c.SendMessage(&player.WSMessage{Type: player.MsgTypeError, Error: "unknown message type"})
	}
}
