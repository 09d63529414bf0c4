package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

var errUnreadableUpload = errors.New("could not read uploaded file")

// uploadRequest carries a remote document reference. Multipart uploads
// send session_id as a form field next to the file part.
type uploadRequest struct {
	SessionID string `json:"session_id" form:"session_id"`
	FileURL   string `json:"file_url" form:"file_url"`
}

type chatRequest struct {
	SessionID string `json:"session_id" form:"session_id"`
	Query     string `json:"query" form:"query"`
}

type resetRequest struct {
	SessionID string `json:"session_id" form:"session_id"`
}

// handleUpload ingests a multipart file or a file_url into a session.
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes+1<<20)

	var (
		source    domain.IngestSource
		sessionID string
	)
	if strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		header, err := c.FormFile("file")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			badRequest(c, "Invalid multipart upload")
			return
		}
		sessionID = c.PostForm("session_id")
		if sessionID == "" {
			s.writeError(c, domain.ErrMissingSessionID)
			return
		}
		// Browsers send an unnamed file part when no file was chosen.
		_, unnamedFile := c.GetPostForm("file")
		fileURL := c.PostForm("file_url")
		switch {
		case header != nil && header.Filename != "":
			content, err := s.readUpload(header)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			source = domain.IngestSource{Filename: header.Filename, Content: content}
		case fileURL != "":
			source = domain.IngestSource{URL: fileURL}
		case header != nil || unnamedFile:
			s.writeError(c, domain.ErrMissingFilename)
			return
		}
	} else {
		var req uploadRequest
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
		sessionID = req.SessionID
		if sessionID == "" {
			s.writeError(c, domain.ErrMissingSessionID)
			return
		}
		source = domain.IngestSource{URL: req.FileURL}
	}

	if !source.IsRemote() && source.Filename == "" && len(source.Content) == 0 {
		badRequest(c, "Either file or file_url must be provided.")
		return
	}

	result, err := s.ports.Ingest.Ingest(c.Request.Context(), source, sessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, UploadResponse{Message: "PDF processed", Chunks: result.ChunkCount})
}

func (s *Server) readUpload(header *multipart.FileHeader) ([]byte, error) {
	if header.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("file exceeds the %d byte upload limit", s.cfg.MaxUploadBytes)
	}
	f, err := header.Open()
	if err != nil {
		return nil, errUnreadableUpload
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes))
	if err != nil {
		return nil, errUnreadableUpload
	}
	return content, nil
}

// handleChat answers a question against a session's documents.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	answer, err := s.ports.Query.Answer(c.Request.Context(), req.Query, req.SessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if answer.Sources == nil {
		answer.Sources = []domain.ChunkMetadata{}
	}
	c.JSON(http.StatusOK, answer)
}

// handleReset deletes a session's index and uploaded files.
func (s *Server) handleReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := s.ports.Session.Reset(c.Request.Context(), req.SessionID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("Session %s has been reset.", req.SessionID)})
}

// handleDeleteEmbeddings removes a session and/or every session last
// written before a cutoff.
func (s *Server) handleDeleteEmbeddings(c *gin.Context) {
	sessionID := c.Query("session_id")
	rawBefore := c.Query("before")
	if sessionID == "" && rawBefore == "" {
		badRequest(c, "Either session_id or before timestamp must be provided.")
		return
	}

	var before *time.Time
	if rawBefore != "" {
		t, err := parseBefore(rawBefore)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		before = &t
	}

	deleted, err := s.ports.Session.Clear(c.Request.Context(), sessionID, before)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	c.JSON(http.StatusOK, DeleteResponse{Message: "Embeddings deleted successfully.", Deleted: deleted})
}

// handleSessionStatus describes what a session holds.
func (s *Server) handleSessionStatus(c *gin.Context) {
	status, err := s.ports.Session.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// beforeLayouts are the accepted cutoff formats besides unix seconds.
var beforeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

// parseBefore accepts RFC 3339, a bare ISO date-time in UTC, a date, or
// unix seconds.
func parseBefore(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range beforeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid before timestamp %q", raw)
}
