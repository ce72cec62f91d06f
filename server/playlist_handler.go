package server

import (
	"errors"
	"net/http"

	"Tunevault/core/playlist"
	"Tunevault/logger"
	"Tunevault/model"

	"github.com/gorilla/mux"
)

// CreatePlaylistHandler 创建歌单
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in model.PlaylistInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.playlists.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPlaylistsHandler 当前用户的歌单，按更新时间倒序
func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.playlists.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListPublicPlaylistsHandler 所有公开歌单
func (h *APIHandler) ListPublicPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.playlists.ListPublic(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetPlaylistHandler 读取歌单；私有歌单仅所有者可见
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	p, err := h.playlists.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePlaylistHandler 修改歌单
func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var patch model.PlaylistPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	p, err := h.playlists.Update(r.Context(), userID, mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePlaylistHandler 删除歌单
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.playlists.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadPlaylistCoverHandler 上传歌单封面，multipart 字段 image
// 带 {id} 时同时更新歌单的 coverImage；不带时用于尚未创建的歌单，仅返回地址
func (h *APIHandler) UploadPlaylistCoverHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	playlistID := mux.Vars(r)["id"]

	if h.cfg.CoverMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.CoverMaxBytes+(1<<20))
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, playlist.ErrImageTooLarge)
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "Failed to parse upload form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Missing 'image' in form")
		return
	}
	defer file.Close()

	url, err := h.playlists.UploadCover(r.Context(), userID, playlistID,
		header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeError(w, err)
		return
	}

	if playlistID == "" {
		writeJSON(w, http.StatusCreated, map[string]string{"url": url})
		return
	}

	p, err := h.playlists.Update(r.Context(), userID, playlistID, model.PlaylistPatch{CoverImage: &url})
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("[Playlist] 更新歌单封面", logger.String("playlistId", playlistID), logger.String("url", url))
	writeJSON(w, http.StatusOK, map[string]interface{}{"url": url, "playlist": p})
}

// AddPlaylistSongHandler 添加歌曲 {"songId": "..."}
func (h *APIHandler) AddPlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		SongID string `json:"songId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SongID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "songId is required")
		return
	}
	p, err := h.playlists.AddSong(r.Context(), userID, mux.Vars(r)["id"], req.SongID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RemovePlaylistSongHandler 移除歌曲
func (h *APIHandler) RemovePlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	p, err := h.playlists.RemoveSong(r.Context(), userID, vars["id"], vars["songId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ReorderPlaylistHandler 调整顺序 {"songIds": [...]}，必须是现有歌曲的重新排列
func (h *APIHandler) ReorderPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		SongIDs []string `json:"songIds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.playlists.Reorder(r.Context(), userID, mux.Vars(r)["id"], req.SongIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PlaylistSongsHandler 歌单中的歌曲详情
func (h *APIHandler) PlaylistSongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	songs, err := h.playlists.Songs(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}
