package server

import (
	"errors"
	"net/http"

	"Tunevault/core/recommend"
	"Tunevault/logger"
	"Tunevault/model"
)

// RecommendHandler POST /api/recommendations
// 请求体 {"songs":[{"title","artist"}], "type":"similar|discover"}
func (h *APIHandler) RecommendHandler(w http.ResponseWriter, r *http.Request) {
	var req model.RecommendationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Songs) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request: songs array is required")
		return
	}

	resp, err := h.recommend.Recommend(r.Context(), req.Songs, recommend.ParseKind(req.Type))
	if err != nil {
		for _, known := range []error{recommend.ErrNotConfigured, recommend.ErrNoRecommendations, recommend.ErrRateLimited, recommend.ErrNoSongs} {
			if errors.Is(err, known) {
				writeError(w, err)
				return
			}
		}
		logger.Error("[Recommend] 获取推荐失败", logger.ErrorField(err))
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to get recommendations")
		return
	}
	if resp.Recommendations == nil {
		resp.Recommendations = []model.Recommendation{}
	}
	writeJSON(w, http.StatusOK, resp)
}
