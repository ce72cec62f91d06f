package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"Tunevault/core/library"
	"Tunevault/logger"
	"Tunevault/model"

	"github.com/gorilla/mux"
)

// multipart 解析时保留在内存中的上限，超出部分写临时文件
const multipartMemory = 32 << 20

// UploadMusicHandler 上传音频文件
// multipart 字段：file（必填），title/artist/album/genre/year/duration（可选，覆盖标签）
func (h *APIHandler) UploadMusicHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	maxBytes := h.library.Options().MaxBytes
	if maxBytes > 0 {
		if r.ContentLength > maxBytes+(1<<20) {
			writeError(w, fmt.Errorf("%w: maximum size is %d MB", library.ErrFileTooLarge, maxBytes>>20))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, library.ErrFileTooLarge)
			return
		}
		logger.Warn("[Upload] 解析表单失败", logger.ErrorField(err))
		writeErrorMessage(w, http.StatusBadRequest, "Failed to parse upload form. Please check your file and try again.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Missing 'file' in form")
		return
	}
	defer file.Close()

	overrides, err := metadataFromForm(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	music, err := h.library.Upload(r.Context(), userID, library.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		Overrides:   overrides,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, music)
}

// metadataFromForm 读取表单里非空的元数据字段
func metadataFromForm(r *http.Request) (model.MetadataPatch, error) {
	var p model.MetadataPatch
	str := func(name string) *string {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			return nil
		}
		return &v
	}
	p.Title = str("title")
	p.Artist = str("artist")
	p.Album = str("album")
	p.Genre = str("genre")

	if v := str("year"); v != nil {
		year, err := strconv.Atoi(*v)
		if err != nil {
			return p, fmt.Errorf("invalid year %q", *v)
		}
		p.Year = &year
	}
	if v := str("duration"); v != nil {
		d, err := strconv.ParseFloat(*v, 64)
		if err != nil || d < 0 {
			return p, fmt.Errorf("invalid duration %q", *v)
		}
		p.Duration = &d
	}
	return p, nil
}

// ListMusicHandler 列出曲库；?q= 搜索，?title=&artist=&album=&genre=&year= 过滤
func (h *APIHandler) ListMusicHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	if q.Has("q") {
		result, err := h.library.Search(r.Context(), userID, q.Get("q"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	filter := model.MusicFilter{
		Title:  q.Get("title"),
		Artist: q.Get("artist"),
		Album:  q.Get("album"),
		Genre:  q.Get("genre"),
	}
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "Invalid year")
			return
		}
		filter.Year = year
	}

	files, err := h.library.Filter(r.Context(), userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &library.SearchResult{Files: files})
}

// GetMusicHandler 读取一首音乐
func (h *APIHandler) GetMusicHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	f, err := h.library.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// UpdateMusicHandler 修改元数据
func (h *APIHandler) UpdateMusicHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var patch model.MetadataPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	f, err := h.library.UpdateMetadata(r.Context(), userID, mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteMusicHandler 删除音乐
func (h *APIHandler) DeleteMusicHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.library.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UniqueValuesHandler 某字段的去重取值（原始大小写）
func (h *APIHandler) UniqueValuesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	values, err := h.library.UniqueValues(r.Context(), userID, mux.Vars(r)["field"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// IndexValuesHandler 索引中某字段的去重取值（小写）
func (h *APIHandler) IndexValuesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	field := mux.Vars(r)["field"]
	if !isIndexField(field) {
		writeError(w, fmt.Errorf("%w: %s", library.ErrInvalidField, field))
		return
	}
	values, err := h.index.UniqueValues(r.Context(), userID, field)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func isIndexField(field string) bool {
	base := strings.TrimSuffix(field, model.WordFieldSuffix)
	for _, f := range model.IndexedFields {
		if f == base {
			return true
		}
	}
	return false
}
