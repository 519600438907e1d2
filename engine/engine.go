package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/drummonds/resumeraster/engine/pdfrenderer"
	"github.com/labstack/echo/v4"
)

const defaultMaxUploadMB = 32

var (
	errMissingFile      = errors.New("no file in upload")
	errUploadTooLarge   = errors.New("upload too large")
	errDuplicateResume  = errors.New("resume already uploaded")
	errConversionFailed = errors.New("conversion failed")
)

type upload struct {
	name string
	data []byte
}

func (u upload) input() pdfrenderer.Input {
	return pdfrenderer.Input{Name: u.name, Bytes: u.data}
}

func (serverHandler *ServerHandler) uploadLimit() int64 {
	mb := serverHandler.ServerConfig.MaxUploadMB
	if mb <= 0 {
		mb = defaultMaxUploadMB
	}
	return int64(mb) << 20
}

// readUpload pulls the multipart "file" field into memory
func (serverHandler *ServerHandler) readUpload(c echo.Context) (upload, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		Logger.Debug("Problem finding file in upload", "error", err)
		return upload{}, errMissingFile
	}
	limit := serverHandler.uploadLimit()
	if fileHeader.Size > limit {
		return upload{}, fmt.Errorf("%w: %d bytes", errUploadTooLarge, fileHeader.Size)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return upload{}, fmt.Errorf("unable to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return upload{}, fmt.Errorf("unable to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return upload{}, fmt.Errorf("%w: more than %d bytes", errUploadTooLarge, limit)
	}
	return upload{name: fileHeader.Filename, data: data}, nil
}

func uploadError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errMissingFile):
		return jsonError(c, http.StatusBadRequest, "A PDF must be sent in the \"file\" field")
	case errors.Is(err, errUploadTooLarge):
		return jsonError(c, http.StatusRequestEntityTooLarge, err.Error())
	default:
		Logger.Error("Unable to read upload", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Unable to read upload")
	}
}

// ingestResume converts an upload and stores the PDF, the PNG and the record.
// A duplicate returns the existing record with errDuplicateResume; a failed
// conversion returns the result with errConversionFailed.
func (serverHandler *ServerHandler) ingestResume(ctx context.Context, up upload, companyName, jobTitle string) (*Resume, pdfrenderer.Result, error) {
	hash := calculateHash(up.data)
	logger := Logger.With("fileName", up.name, "hash", hash)

	existing, err := fetchResumeByHash(ctx, serverHandler.KV, hash)
	if err != nil {
		logger.Error("Unable to check for duplicate resume", "error", err)
		return nil, pdfrenderer.Result{}, err
	}
	if existing != nil {
		logger.Info("Duplicate resume upload", "existingID", existing.ID)
		return existing, pdfrenderer.Result{}, errDuplicateResume
	}

	result := serverHandler.Converter.Convert(ctx, up.input())
	if !result.OK() {
		logger.Warn("Resume conversion failed", "error", result.Error)
		return nil, result, errConversionFailed
	}

	resume := newResume(up.name, companyName, jobTitle, hash, time.Now())
	logger = logger.With("id", resume.ID)
	if err := serverHandler.writeObjects(ctx, resume, up.data, result.File.Bytes); err != nil {
		serverHandler.discardPreview(result)
		logger.Error("Unable to store resume files", "error", err)
		return nil, pdfrenderer.Result{}, err
	}

	// Re-check under the lock: an identical upload may have finished while we converted
	serverHandler.ingestLock.Lock()
	defer serverHandler.ingestLock.Unlock()
	existing, err = fetchResumeByHash(ctx, serverHandler.KV, hash)
	if err == nil && existing != nil {
		serverHandler.deleteObjects(ctx, resume)
		serverHandler.discardPreview(result)
		logger.Info("Duplicate resume upload", "existingID", existing.ID)
		return existing, pdfrenderer.Result{}, errDuplicateResume
	}
	if err == nil {
		err = saveResume(ctx, serverHandler.KV, resume)
	}
	if err != nil {
		serverHandler.deleteObjects(ctx, resume)
		serverHandler.discardPreview(result)
		logger.Error("Unable to save resume record", "error", err)
		return nil, pdfrenderer.Result{}, err
	}

	logger.Info("Resume stored", "resumePath", resume.ResumePath, "imagePath", resume.ImagePath)
	return resume, result, nil
}

func (serverHandler *ServerHandler) writeObjects(ctx context.Context, resume *Resume, pdfData, pngData []byte) error {
	if err := serverHandler.Objects.Write(ctx, resume.ResumePath, pdfData); err != nil {
		return err
	}
	if err := serverHandler.Objects.Write(ctx, resume.ImagePath, pngData); err != nil {
		serverHandler.deleteObjects(ctx, resume)
		return err
	}
	return nil
}

// discardPreview releases the preview minted for a conversion whose resume was not kept
func (serverHandler *ServerHandler) discardPreview(result pdfrenderer.Result) {
	if serverHandler.Previews == nil || result.ImageURL == "" {
		return
	}
	serverHandler.Previews.RevokeURL(result.ImageURL)
}

// deleteObjects is best effort; failures are logged
func (serverHandler *ServerHandler) deleteObjects(ctx context.Context, resume *Resume) {
	for _, objectPath := range []string{resume.ImagePath, resume.ResumePath} {
		if err := serverHandler.Objects.Delete(ctx, objectPath); err != nil {
			Logger.Warn("Unable to delete resume object", "id", resume.ID, "path", objectPath, "error", err)
		}
	}
}

// removeResume deletes the record before the objects
func (serverHandler *ServerHandler) removeResume(ctx context.Context, resume *Resume) error {
	if err := deleteResumeRecord(ctx, serverHandler.KV, resume); err != nil {
		Logger.Error("Unable to delete resume record", "id", resume.ID, "error", err)
		return err
	}
	serverHandler.deleteObjects(ctx, resume)
	Logger.Info("Resume deleted", "id", resume.ID)
	return nil
}
