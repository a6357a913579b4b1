package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goagiq/mcp-markitdown-ui/ocr"
)

// Converter is the part of the OCR orchestrator the HTTP layer uses.
type Converter interface {
	Convert(ctx context.Context, data []byte, info ocr.StreamInfo) (*ocr.ConversionResult, error)
	ModelStatuses(ctx context.Context) []ocr.ModelStatus
}

// App struct to hold dependencies
type App struct {
	Converter Converter
	Jobs      *JobStore
	Queue     *JobQueue
}

// maxUploadSize bounds the body of an upload request.
const maxUploadSize = 100 << 20

func (app *App) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/health", healthHandler)
		api.POST("/convert", app.convertHandler)
		api.POST("/jobs", app.submitJobHandler)
		api.GET("/jobs", app.getAllJobsHandler)
		api.GET("/jobs/:job_id", app.getJobStatusHandler)
		api.GET("/models", app.getModelsHandler)
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readUpload reads the multipart "file" field of the request.
func readUpload(c *gin.Context) ([]byte, ocr.StreamInfo, error) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, ocr.StreamInfo{}, fmt.Errorf("missing file: %w", err)
	}
	f, err := fileHeader.Open()
	if err != nil {
		return nil, ocr.StreamInfo{}, fmt.Errorf("error opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, ocr.StreamInfo{}, fmt.Errorf("error reading upload: %w", err)
	}

	info := ocr.StreamInfo{
		Filename:  filepath.Base(fileHeader.Filename),
		Extension: filepath.Ext(fileHeader.Filename),
	}
	// Browsers send octet-stream for anything they do not know
	if ct := fileHeader.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		info.MIMEType = strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return data, info, nil
}

// convertHandler handles the POST /api/convert endpoint
func (app *App) convertHandler(c *gin.Context) {
	data, info, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := app.Converter.Convert(c.Request.Context(), data, info)
	if err != nil {
		log.WithField("filename", info.Filename).Errorf("Error converting document: %v", err)
		c.JSON(conversionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"markdown": result.Markdown,
		"metadata": result.Metadata,
	})
}

func conversionErrorStatus(err error) int {
	switch {
	case ocr.IsUnsupportedFormat(err):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ocr.ErrNoPages):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// submitJobHandler handles the POST /api/jobs endpoint
func (app *App) submitJobHandler(c *gin.Context) {
	data, info, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := newJob(data, info)
	if err := app.Queue.Submit(job); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "job_id": job.ID})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

func (app *App) getJobStatusHandler(c *gin.Context) {
	job, exists := app.Jobs.getJob(c.Param("job_id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// getAllJobsHandler lists jobs without their results.
func (app *App) getAllJobsHandler(c *gin.Context) {
	jobs := app.Jobs.GetAllJobs()
	for i := range jobs {
		jobs[i].Result = nil
	}
	c.JSON(http.StatusOK, jobs)
}

// getModelsHandler handles the GET /api/models endpoint
func (app *App) getModelsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.Converter.ModelStatuses(c.Request.Context()))
}
