package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mediachat/internal/assets"
	"mediachat/internal/conversation"
	"mediachat/internal/history"
	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// MessageRequest is the body of POST /api/conversations/:id/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// RenameRequest is the body of PUT /api/conversations/:id.
type RenameRequest struct {
	Title string `json:"title"`
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Snapshot())
}

func (s *Server) createConversation(c *gin.Context) {
	summary := s.registry.CreateConversation()
	c.JSON(http.StatusCreated, summary)
}

func (s *Server) selectConversation(c *gin.Context) {
	if err := s.registry.SelectConversation(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.registry.Snapshot())
}

func (s *Server) renameConversation(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := s.registry.Rename(id, req.Title); err != nil {
		respondError(c, err)
		return
	}
	summary, err := s.registry.Summary(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) deleteConversation(c *gin.Context) {
	id := c.Param("id")
	var videos []string
	if machine, err := s.registry.Get(id); err == nil && s.retention != nil {
		videos = videoHandles(machine.Messages())
	}
	if err := s.registry.Delete(id); err != nil {
		respondError(c, err)
		return
	}
	if s.retention != nil {
		s.retention.release(videos)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

// postMessage starts a submission and returns before the reply exists.
// The reply arrives through /api/events.
func (s *Server) postMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := s.registry.SubmitAsync(s.baseCtx, id, req.Text); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"conversationId": id})
}

func (s *Server) exportConversation(c *gin.Context) {
	id := c.Param("id")
	machine, err := s.registry.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := s.registry.Summary(id)
	if err != nil {
		respondError(c, err)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", conversation.FormatJSON))
	var buf bytes.Buffer
	if err := machine.ExportTitled(&buf, format, summary.Title); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contentType := "application/json; charset=utf-8"
	if format == conversation.FormatYAML || format == "yml" {
		contentType = "application/yaml; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) getAsset(c *gin.Context) {
	asset, err := s.assets.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", asset.MIMEType)
	c.Header("Cache-Control", "private, max-age=3600")
	// ServeContent handles Range requests, which video elements rely on.
	http.ServeContent(c.Writer, c.Request, asset.ID, time.Time{}, bytes.NewReader(asset.Data))
}

// streamEvents pushes a snapshot on connect and after every change.
// Only the latest pending snapshot is kept for slow clients.
func (s *Server) streamEvents(c *gin.Context) {
	updates := make(chan mediatypes.Snapshot, 1)
	unsubscribe := s.registry.Subscribe(func(snapshot mediatypes.Snapshot) {
		select {
		case updates <- snapshot:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- snapshot:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", s.registry.Snapshot())
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case snapshot := <-updates:
			c.SSEvent("snapshot", snapshot)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().Unix()})
			c.Writer.Flush()
		case <-ctx.Done():
			logger.Debug("Event stream closed by client")
			return
		case <-s.baseCtx.Done():
			return
		}
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrBusy), errors.Is(err, history.ErrLastConversation):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrBlankInput), errors.Is(err, history.ErrEmptyTitle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
