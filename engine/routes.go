package engine

import (
	"errors"
	"net/http"
	"sync"

	"github.com/drummonds/resumeraster/config"
	"github.com/drummonds/resumeraster/database"
	"github.com/drummonds/resumeraster/engine/pdfrenderer"
	"github.com/drummonds/resumeraster/storage"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

// PreviewBasePath is where minted preview URLs are served
const PreviewBasePath = "/api/preview"

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	Converter    *pdfrenderer.Converter
	Previews     *pdfrenderer.PreviewRegistry
	Objects      storage.ObjectStore
	KV           database.KVStore
	Echo         *echo.Echo
	ServerConfig config.ServerConfig

	ingestLock sync.Mutex // serialises the duplicate check with the record write
}

type resumeUploadResponse struct {
	Resume   *Resume `json:"resume"`
	ImageURL string  `json:"imageUrl"`
}

func jsonError(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]interface{}{
		"error": message,
	})
}

// RegisterRoutes adds every API route to the echo instance
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo

	// Conversion
	e.POST("/api/convert", serverHandler.ConvertDocument)
	e.GET(PreviewBasePath+"/:id", serverHandler.GetPreview)
	e.DELETE(PreviewBasePath+"/:id", serverHandler.RevokePreview)

	// Resume API routes
	e.POST("/api/resumes", serverHandler.UploadResume)
	e.GET("/api/resumes", serverHandler.GetResumes)
	e.GET("/api/resumes/:id", serverHandler.GetResume)
	e.GET("/api/resumes/:id/image", serverHandler.GetResumeImage)
	e.DELETE("/api/resumes/:id", serverHandler.DeleteResume)

	// Status
	e.GET("/api/engine", serverHandler.GetEngineStatus)
	e.GET("/api/health", serverHandler.Health)
}

// ConvertDocument renders the first page of an uploaded PDF without storing anything
// @Summary Convert a PDF to PNG
// @Description Rasterizes the first page at 4x (288 DPI) and returns the PNG with a preview URL
// @Tags Conversion
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF document"
// @Success 200 {object} pdfrenderer.Result "Converted image"
// @Failure 400 {object} map[string]interface{} "Missing file"
// @Failure 413 {object} map[string]interface{} "Upload too large"
// @Failure 422 {object} pdfrenderer.Result "Conversion failed"
// @Router /convert [post]
func (serverHandler *ServerHandler) ConvertDocument(c echo.Context) error {
	up, err := serverHandler.readUpload(c)
	if err != nil {
		return uploadError(c, err)
	}
	result := serverHandler.Converter.Convert(c.Request().Context(), up.input())
	if !result.OK() {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// GetPreview serves the bytes behind a minted preview URL
// @Summary Fetch a preview image
// @Tags Conversion
// @Produce png
// @Param id path string true "Preview ID"
// @Success 200 {file} binary "Image bytes"
// @Failure 404 {object} map[string]interface{} "Preview revoked or expired"
// @Router /preview/{id} [get]
func (serverHandler *ServerHandler) GetPreview(c echo.Context) error {
	data, mimeType, ok := serverHandler.Previews.Get(c.Param("id"))
	if !ok {
		return jsonError(c, http.StatusNotFound, "Preview not found")
	}
	return c.Blob(http.StatusOK, mimeType, data)
}

// RevokePreview releases a preview URL
// @Summary Revoke a preview URL
// @Tags Conversion
// @Param id path string true "Preview ID"
// @Success 200 {string} string "Preview Revoked"
// @Failure 404 {object} map[string]interface{} "Unknown preview"
// @Router /preview/{id} [delete]
func (serverHandler *ServerHandler) RevokePreview(c echo.Context) error {
	if !serverHandler.Previews.Revoke(c.Param("id")) {
		return jsonError(c, http.StatusNotFound, "Preview not found")
	}
	return c.JSON(http.StatusOK, "Preview Revoked")
}

// UploadResume converts and stores a resume with its metadata
// @Summary Upload a resume
// @Description Stores the PDF and its first-page PNG. Identical content is rejected with the existing record.
// @Tags Resumes
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF resume"
// @Param companyName formData string false "Company the resume targets"
// @Param jobTitle formData string false "Job title the resume targets"
// @Success 201 {object} resumeUploadResponse "Stored resume"
// @Failure 409 {object} Resume "Duplicate upload"
// @Failure 422 {object} pdfrenderer.Result "Conversion failed"
// @Router /resumes [post]
func (serverHandler *ServerHandler) UploadResume(c echo.Context) error {
	up, err := serverHandler.readUpload(c)
	if err != nil {
		return uploadError(c, err)
	}
	resume, result, err := serverHandler.ingestResume(c.Request().Context(), up, c.FormValue("companyName"), c.FormValue("jobTitle"))
	switch {
	case errors.Is(err, errDuplicateResume):
		return c.JSON(http.StatusConflict, resume)
	case errors.Is(err, errConversionFailed):
		return c.JSON(http.StatusUnprocessableEntity, result)
	case err != nil:
		return jsonError(c, http.StatusInternalServerError, "Unable to store resume")
	}
	return c.JSON(http.StatusCreated, resumeUploadResponse{Resume: resume, ImageURL: result.ImageURL})
}

// GetResumes lists stored resumes newest first
// @Summary List resumes
// @Tags Resumes
// @Produce json
// @Success 200 {array} Resume
// @Router /resumes [get]
func (serverHandler *ServerHandler) GetResumes(c echo.Context) error {
	resumes, err := fetchAllResumes(c.Request().Context(), serverHandler.KV)
	if err != nil {
		Logger.Error("Unable to list resumes", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Unable to list resumes")
	}
	return c.JSON(http.StatusOK, resumes)
}

// lookupResume resolves the :id parameter, writing the error response itself when it fails
func (serverHandler *ServerHandler) lookupResume(c echo.Context) (*Resume, error) {
	id := c.Param("id")
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, jsonError(c, http.StatusBadRequest, "Invalid resume id")
	}
	resume, err := fetchResume(c.Request().Context(), serverHandler.KV, id)
	if errors.Is(err, ErrResumeNotFound) {
		return nil, jsonError(c, http.StatusNotFound, "Resume not found")
	}
	if err != nil {
		Logger.Error("Unable to fetch resume", "id", id, "error", err)
		return nil, jsonError(c, http.StatusInternalServerError, "Unable to fetch resume")
	}
	return resume, nil
}

// GetResume returns a single resume record
// @Summary Get a resume
// @Tags Resumes
// @Produce json
// @Param id path string true "Resume ULID"
// @Success 200 {object} Resume
// @Failure 404 {object} map[string]interface{} "Resume not found"
// @Router /resumes/{id} [get]
func (serverHandler *ServerHandler) GetResume(c echo.Context) error {
	resume, err := serverHandler.lookupResume(c)
	if resume == nil {
		return err
	}
	return c.JSON(http.StatusOK, resume)
}

// GetResumeImage serves the stored PNG
// @Summary Get the rendered first page of a resume
// @Tags Resumes
// @Produce png
// @Param id path string true "Resume ULID"
// @Success 200 {file} binary "PNG image"
// @Failure 404 {object} map[string]interface{} "Resume or image not found"
// @Router /resumes/{id}/image [get]
func (serverHandler *ServerHandler) GetResumeImage(c echo.Context) error {
	resume, err := serverHandler.lookupResume(c)
	if resume == nil {
		return err
	}
	data, err := serverHandler.Objects.Read(c.Request().Context(), resume.ImagePath)
	if err != nil {
		Logger.Error("Unable to read resume image", "id", resume.ID, "path", resume.ImagePath, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Unable to read image")
	}
	if data == nil {
		return jsonError(c, http.StatusNotFound, "Image not found")
	}
	return c.Blob(http.StatusOK, pdfrenderer.MimeTypePNG, data)
}

// DeleteResume removes the record and both stored objects
// @Summary Delete a resume
// @Tags Resumes
// @Produce json
// @Param id path string true "Resume ULID"
// @Success 200 {string} string "Resume Deleted"
// @Failure 404 {object} map[string]interface{} "Resume not found"
// @Router /resumes/{id} [delete]
func (serverHandler *ServerHandler) DeleteResume(c echo.Context) error {
	resume, err := serverHandler.lookupResume(c)
	if resume == nil {
		return err
	}
	if err := serverHandler.removeResume(c.Request().Context(), resume); err != nil {
		return jsonError(c, http.StatusInternalServerError, "Unable to delete resume")
	}
	return c.JSON(http.StatusOK, "Resume Deleted")
}

// GetEngineStatus reports the render engine lifecycle
// @Summary Render engine status
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /engine [get]
func (serverHandler *ServerHandler) GetEngineStatus(c echo.Context) error {
	loader := serverHandler.Converter.Loader()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"backend":  serverHandler.ServerConfig.Backend,
		"state":    loader.State(),
		"attempts": loader.Attempts(),
		"previews": serverHandler.Previews.Len(),
	})
}

// Health is the liveness probe
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "resumeraster",
	})
}
