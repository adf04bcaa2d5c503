package http

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/taskhive/taskhive/internal/blob"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/http/middleware"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/repository"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// NewFileServer wires the file service HTTP surface: metadata rows in the
// store, blob bytes on the disk store.
func NewFileServer(cfg config.Config, files repository.FilesRepository, blobs *blob.Store, log *zap.Logger) *Server {
	e := newEcho("file-service")

	authMW := middleware.JWTMiddleware(cfg.JWT.Secret)
	g := e.Group("/files", authMW)
	g.POST("", uploadFileHandler(files, blobs, log))
	g.GET("", listFilesHandler(files, log))
	g.GET("/:id/download", downloadFileHandler(files, blobs, log))
	g.DELETE("/:id", deleteFileHandler(files, blobs, log))

	return &Server{e: e}
}

func uploadFileHandler(files repository.FilesRepository, blobs *blob.Store, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)

		fh, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "please upload a file"})
		}

		src, err := fh.Open()
		if err != nil {
			return dependencyError(c, log, err)
		}
		defer src.Close()

		stored, size, err := blobs.Save(src, filepath.Ext(fh.Filename))
		if err != nil {
			return dependencyError(c, log, err)
		}

		saved, err := files.Create(c.Request().Context(), model.File{
			UserID:       userID,
			OriginalName: fh.Filename,
			StoredName:   stored,
			MimeType:     fh.Header.Get("Content-Type"),
			Size:         size,
		})
		if err != nil {
			// metadata failed; drop the orphan blob so disk matches the store
			_ = blobs.Remove(stored)
			return dependencyError(c, log, err)
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"message": "file uploaded successfully",
			"file":    saved,
		})
	}
}

func listFilesHandler(files repository.FilesRepository, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)

		list, err := files.ListByUser(c.Request().Context(), userID)
		if err != nil {
			return dependencyError(c, log, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

func downloadFileHandler(files repository.FilesRepository, blobs *blob.Store, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)

		fileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || fileID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid file id"})
		}

		rec, err := files.GetByIDAndUser(c.Request().Context(), fileID, userID)
		if err != nil {
			return dependencyError(c, log, err)
		}
		if rec == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found or unauthorized"})
		}

		f, err := blobs.Open(rec.StoredName)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "file no longer exists on disk"})
		}
		defer f.Close()

		c.Response().Header().Set(echo.HeaderContentDisposition,
			`attachment; filename="`+rec.OriginalName+`"`)
		return c.Stream(http.StatusOK, rec.MimeType, f)
	}
}

func deleteFileHandler(files repository.FilesRepository, blobs *blob.Store, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)

		fileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || fileID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid file id"})
		}

		rec, err := files.GetByIDAndUser(c.Request().Context(), fileID, userID)
		if err != nil {
			return dependencyError(c, log, err)
		}
		if rec == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found or unauthorized"})
		}

		if err := blobs.Remove(rec.StoredName); err != nil {
			return dependencyError(c, log, err)
		}
		if _, err := files.Delete(c.Request().Context(), fileID, userID); err != nil {
			return dependencyError(c, log, err)
		}

		return c.JSON(http.StatusOK, map[string]string{"message": "file deleted successfully"})
	}
}
