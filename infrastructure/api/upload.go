package api

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// sniffLen is how much of the file mimetype needs to recognize it.
const sniffLen = 3072

type Uploader interface {
	SendFile(ctx context.Context, uploaderID, username string, file domain.FileMeta) (domain.Message, error)
}

type UploadResponse struct {
	Message string         `json:"message"`
	Data    domain.Message `json:"data"`
}

// UploadHandler serves POST /upload with multipart fields "file", "username" and "socketId".
// The file is stored first, then recorded and broadcast as a chat message.
type UploadHandler struct {
	log      *slog.Logger
	blobs    contract.IBlobStore
	uploader Uploader
	maxBytes int64
}

func NewUploadHandler(log *slog.Logger, blobs contract.IBlobStore, uploader Uploader, maxBytes int64) *UploadHandler {
	return &UploadHandler{log: log, blobs: blobs, uploader: uploader, maxBytes: maxBytes}
}

// Upload handles POST /upload.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge,
				fmt.Errorf("%w: larger than %d bytes", errors.ErrUploadRejected, tooLarge.Limit))
			return
		}
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: %v", errors.ErrUploadRejected, err))
		return
	}
	defer func() { _ = c.Request.MultipartForm.RemoveAll() }()

	username := strings.TrimSpace(c.PostForm("username"))
	socketID := strings.TrimSpace(c.PostForm("socketId"))
	header, err := c.FormFile("file")
	if err != nil || username == "" || socketID == "" {
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: missing file or user information", errors.ErrUploadRejected))
		return
	}
	file, err := header.Open()
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Errorf("%w: %v", errors.ErrUploadFailed, err))
		return
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		writeError(c, http.StatusInternalServerError, fmt.Errorf("%w: %v", errors.ErrUploadFailed, err))
		return
	}
	head = head[:n]
	mime := mimetype.Detect(head)

	ctx := c.Request.Context()
	key, err := h.blobs.Put(ctx, header.Filename, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		h.log.Error("Upload not stored", "filename", header.Filename, "error", err)
		writeError(c, http.StatusInternalServerError, fmt.Errorf("%w: %v", errors.ErrUploadFailed, err))
		return
	}

	message, err := h.uploader.SendFile(ctx, socketID, username, domain.FileMeta{
		URL:      absoluteURL(c.Request, h.blobs.URL(key)),
		Name:     header.Filename,
		MimeType: mime.String(),
		Size:     header.Size,
	})
	if err != nil {
		// no message references the file
		if delErr := h.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			h.log.Warn("Orphan upload not removed", "key", key, "error", delErr)
		}
		status := http.StatusInternalServerError
		if errors.Is(err, errors.ErrUploadRejected) {
			status = http.StatusBadRequest
		}
		writeError(c, status, err)
		return
	}
	h.log.Info("File uploaded", "key", key, "room", message.Room, "sender", message.Sender, "type", mime.String())
	c.JSON(http.StatusCreated, UploadResponse{Message: "File uploaded successfully", Data: message})
}

// absoluteURL prefixes a host-relative URL with the scheme and host the client used.
func absoluteURL(r *http.Request, url string) string {
	if !strings.HasPrefix(url, "/") {
		return url
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + url
}
