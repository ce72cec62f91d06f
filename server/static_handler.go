package server

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"Tunevault/logger"
	"Tunevault/storage"
)

// MediaHandler 代理对象存储中的文件，支持 Range 请求（音频拖动进度）
type MediaHandler struct {
	store storage.ObjectStore
}

// NewMediaHandler 创建 MediaHandler 实例
func NewMediaHandler(store storage.ObjectStore) *MediaHandler {
	return &MediaHandler{store: store}
}

// ServeHTTP 实现 http.Handler 接口
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	key, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), storage.MediaPathPrefix))
	if err != nil || key == "" || strings.Contains(key, "..") {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid object path")
		return
	}

	obj, err := h.store.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			logger.Error("[Media] 读取对象失败", logger.String("key", key), logger.ErrorField(err))
		}
		writeError(w, err)
		return
	}
	defer obj.Close()

	contentType := obj.Info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if obj.Info.ETag != "" {
		w.Header().Set("ETag", `"`+obj.Info.ETag+`"`)
	}

	http.ServeContent(w, r, path.Base(key), obj.Info.LastModified, obj)
}

// spaHandler 提供前端静态文件，未知路径回退到 index.html
type spaHandler struct {
	dir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := filepath.Join(h.dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if _, err := os.Stat(p); err != nil {
		http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
		return
	}
	http.FileServer(http.Dir(h.dir)).ServeHTTP(w, r)
}
