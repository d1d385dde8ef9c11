package server

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/analysis"
	"github.com/f-sync/socialpulse/internal/export"
	"github.com/f-sync/socialpulse/internal/features"
	"github.com/f-sync/socialpulse/internal/service"
	"github.com/f-sync/socialpulse/internal/snapshots"
)

const (
	healthRoutePath          = "/healthz"
	apiGroupPath             = "/api"
	analyzeRoutePath         = "/analyze"
	snapshotsRoutePath       = "/snapshots"
	latestSnapshotRoutePath  = "/snapshots/latest"
	snapshotRoutePath        = "/snapshots/:id"
	compareRoutePath         = "/compare"
	featuresRoutePath        = "/features"
	snapshotIDParameter      = "id"
	previousQueryParameter   = "previous"
	currentQueryParameter    = "current"
	uploadFilesField         = "files"
	uploadLabelField         = "label"
	healthStatusKey          = "status"
	healthStatusOK           = "ok"
	errorResponseKey         = "error"
	ginModeRelease           = "release"
	defaultMaxUploadMegabyte = 64
	multipartMemoryMegabyte  = 32

	errorMessageMissingUpload      = "multipart field \"files\" is required"
	errorMessageInvalidUpload      = "uploaded files could not be read"
	errorMessageUploadTooLarge     = "upload exceeds the size limit"
	errorMessageNoRelationshipData = "no relationship data recognized in the uploaded files"
	errorMessageSnapshotNotFound   = "snapshot not found"
	errorMessageFeatureDisabled    = "feature not available for this account"
	errorMessageMissingCompareIDs  = "both previous and current are required"
	errorMessageInternal           = "internal error"

	logMessageUploadFailure   = "upload read failure"
	logMessageAnalysisFailure = "analysis failure"
	logMessageStoreFailure    = "snapshot store failure"
	logMessageCompareFailure  = "comparison failure"
	logFieldFileName          = "file_name"
	logFieldSnapshotID        = "snapshot_id"
)

// RouterConfig configures the HTTP API. MaxUploadBytes caps a whole analyze request
// body and MaxArchiveEntryBytes caps each decompressed entry of an uploaded zip; zero
// selects the defaults.
type RouterConfig struct {
	Service              *service.Service
	Logger               *zap.Logger
	MaxUploadBytes       int64
	MaxArchiveEntryBytes int64
}

// NewRouter constructs a Gin engine serving the analysis API and the health check.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	pipeline := configuration.Service
	if pipeline == nil {
		pipeline = service.New(service.Dependencies{Logger: configuration.Logger})
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = multipartMemoryMegabyte << 20

	maxUploadBytes := configuration.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadMegabyte << 20
	}
	maxEntryBytes := configuration.MaxArchiveEntryBytes
	if maxEntryBytes <= 0 {
		maxEntryBytes = export.DefaultMaxEntryBytes
	}

	handler := analysisHandler{
		service:        pipeline,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		maxEntryBytes:  maxEntryBytes,
	}

	engine.GET(healthRoutePath, handler.healthStatus)
	api := engine.Group(apiGroupPath)
	api.POST(analyzeRoutePath, handler.analyze)
	api.GET(snapshotsRoutePath, handler.listSnapshots)
	api.DELETE(snapshotsRoutePath, handler.clearSnapshots)
	api.GET(latestSnapshotRoutePath, handler.latestSnapshot)
	api.GET(snapshotRoutePath, handler.getSnapshot)
	api.DELETE(snapshotRoutePath, handler.removeSnapshot)
	api.GET(compareRoutePath, handler.compare)
	api.GET(featuresRoutePath, handler.listFeatures)

	return engine, nil
}

type analysisHandler struct {
	service        *service.Service
	logger         *zap.Logger
	maxUploadBytes int64
	maxEntryBytes  int64
}

func (handler analysisHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

func (handler analysisHandler) analyze(ginContext *gin.Context) {
	if ginContext.Request.ContentLength > handler.maxUploadBytes {
		respondError(ginContext, http.StatusRequestEntityTooLarge, errorMessageUploadTooLarge)
		return
	}
	ginContext.Request.Body = http.MaxBytesReader(ginContext.Writer, ginContext.Request.Body, handler.maxUploadBytes)

	form, err := ginContext.MultipartForm()
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			respondError(ginContext, http.StatusRequestEntityTooLarge, errorMessageUploadTooLarge)
			return
		}
		respondError(ginContext, http.StatusBadRequest, errorMessageMissingUpload)
		return
	}
	if len(form.File[uploadFilesField]) == 0 {
		respondError(ginContext, http.StatusBadRequest, errorMessageMissingUpload)
		return
	}

	var files []export.InputFile
	for _, fileHeader := range form.File[uploadFilesField] {
		uploaded, readErr := readUpload(fileHeader, handler.maxEntryBytes)
		if readErr != nil {
			handler.logger.Warn(logMessageUploadFailure, zap.String(logFieldFileName, fileHeader.Filename), zap.Error(readErr))
			if errors.Is(readErr, export.ErrEntryTooLarge) {
				respondError(ginContext, http.StatusRequestEntityTooLarge, errorMessageUploadTooLarge)
				return
			}
			respondError(ginContext, http.StatusBadRequest, errorMessageInvalidUpload)
			return
		}
		files = append(files, uploaded...)
	}

	outcome, err := handler.service.AnalyzeFiles(ginContext.Request.Context(), files, ginContext.PostForm(uploadLabelField))
	if err != nil {
		if errors.Is(err, service.ErrNoRelationshipData) {
			respondError(ginContext, http.StatusUnprocessableEntity, errorMessageNoRelationshipData)
			return
		}
		handler.logger.Error(logMessageAnalysisFailure, zap.Error(err))
		respondError(ginContext, http.StatusInternalServerError, errorMessageInternal)
		return
	}
	ginContext.JSON(http.StatusOK, outcome)
}

// readUpload expands zip uploads into their JSON entries; other uploads are taken as one file.
func readUpload(fileHeader *multipart.FileHeader, maxEntryBytes int64) ([]export.InputFile, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if export.IsArchiveName(fileHeader.Filename) {
		return export.ReadArchive(bytes.NewReader(data), int64(len(data)), export.WithMaxEntryBytes(maxEntryBytes))
	}
	return []export.InputFile{{FileName: fileHeader.Filename, RawText: string(data)}}, nil
}

func (handler analysisHandler) listSnapshots(ginContext *gin.Context) {
	history, err := handler.service.Store().List(ginContext.Request.Context())
	if err != nil {
		handler.storeFailure(ginContext, err)
		return
	}
	summaries := make([]snapshots.Summary, 0, len(history))
	for _, snapshot := range history {
		summaries = append(summaries, snapshots.Summarize(snapshot))
	}
	ginContext.JSON(http.StatusOK, summaries)
}

func (handler analysisHandler) latestSnapshot(ginContext *gin.Context) {
	snapshot, err := handler.service.Store().Latest(ginContext.Request.Context())
	if err != nil {
		handler.storeFailure(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, snapshot)
}

func (handler analysisHandler) getSnapshot(ginContext *gin.Context) {
	snapshot, err := handler.service.Store().Get(ginContext.Request.Context(), ginContext.Param(snapshotIDParameter))
	if err != nil {
		handler.storeFailure(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, snapshot)
}

func (handler analysisHandler) removeSnapshot(ginContext *gin.Context) {
	if err := handler.service.Store().Remove(ginContext.Request.Context(), ginContext.Param(snapshotIDParameter)); err != nil {
		handler.storeFailure(ginContext, err)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

func (handler analysisHandler) clearSnapshots(ginContext *gin.Context) {
	if err := handler.service.Store().Clear(ginContext.Request.Context()); err != nil {
		handler.storeFailure(ginContext, err)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

// compare diffs the two named snapshots, or the two most recent when neither is named.
func (handler analysisHandler) compare(ginContext *gin.Context) {
	previousID := ginContext.Query(previousQueryParameter)
	currentID := ginContext.Query(currentQueryParameter)
	requestContext := ginContext.Request.Context()

	var (
		comparison analysis.Comparison
		err        error
	)
	switch {
	case previousID == "" && currentID == "":
		comparison, err = handler.service.CompareWithLatest(requestContext)
	case previousID == "" || currentID == "":
		respondError(ginContext, http.StatusBadRequest, errorMessageMissingCompareIDs)
		return
	default:
		comparison, err = handler.service.Compare(requestContext, previousID, currentID)
	}

	switch {
	case err == nil:
		ginContext.JSON(http.StatusOK, comparison)
	case errors.Is(err, features.ErrFeatureDisabled):
		respondError(ginContext, http.StatusForbidden, errorMessageFeatureDisabled)
	case errors.Is(err, snapshots.ErrSnapshotNotFound):
		respondError(ginContext, http.StatusNotFound, errorMessageSnapshotNotFound)
	default:
		handler.logger.Error(logMessageCompareFailure, zap.Error(err))
		respondError(ginContext, http.StatusInternalServerError, errorMessageInternal)
	}
}

func (handler analysisHandler) listFeatures(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, features.Snapshot(handler.service.Gate()))
}

func (handler analysisHandler) storeFailure(ginContext *gin.Context, err error) {
	if errors.Is(err, snapshots.ErrSnapshotNotFound) {
		respondError(ginContext, http.StatusNotFound, errorMessageSnapshotNotFound)
		return
	}
	handler.logger.Error(logMessageStoreFailure, zap.String(logFieldSnapshotID, ginContext.Param(snapshotIDParameter)), zap.Error(err))
	respondError(ginContext, http.StatusInternalServerError, errorMessageInternal)
}

func respondError(ginContext *gin.Context, status int, message string) {
	ginContext.JSON(status, map[string]string{errorResponseKey: message})
}
