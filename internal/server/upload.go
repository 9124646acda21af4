package server

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/azazel75/clapshot/internal/apperrors"
	"github.com/azazel75/clapshot/internal/pipeline/metadata"
)

// handleUpload receives a multipart file upload, stages it under a
// uuid-named directory and queues it for metadata extraction. User identity
// comes from the reverse proxy's headers.
func (s *Server) handleUpload(c echo.Context) error {
	userID := c.Request().Header.Get("X-Remote-User-Id")
	if userID == "" {
		slog.Warn("No user id in X-Remote-User-Id header, using 'anonymous'")
		userID = "anonymous"
	}

	file, err := c.FormFile("fileupload")
	if err != nil {
		return apperrors.ValidationError("no fileupload field in POST")
	}
	filename := filepath.Base(file.Filename)
	if filename == "" || filename == "." || filename != file.Filename {
		return apperrors.ValidationError("filename must not contain path")
	}

	dstDir := filepath.Join(s.config.UploadDir(), uuid.NewString())
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return apperrors.InternalError("failed to create upload dir", err)
	}
	dst := filepath.Join(dstDir, filename)

	src, err := file.Open()
	if err != nil {
		return apperrors.InternalError("failed to read upload", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return apperrors.InternalError("failed to save upload", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.RemoveAll(dstDir)
		return apperrors.InternalError("failed to save upload", err)
	}
	if err := out.Close(); err != nil {
		_ = os.RemoveAll(dstDir)
		return apperrors.InternalError("failed to save upload", err)
	}

	slog.Info("Upload saved, queueing for processing", "file", dst, "user_id", userID)

	select {
	case s.ingestQ <- metadata.IncomingFile{Path: dst, UserID: userID}:
	default:
		_ = os.RemoveAll(dstDir)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ingest queue full, try again later")
	}

	return c.String(http.StatusOK, "Upload OK")
}
