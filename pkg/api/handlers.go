package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"wagate/pkg/challenge"
	"wagate/pkg/media"
	"wagate/pkg/wire"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"session":   s.session.State().String(),
		"connected": s.session.Connected(),
	})
}

type sendTextRequest struct {
	To   string `json:"to" binding:"required"`
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleSendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.session.SendText(c.Request.Context(), req.To, req.Text); err != nil {
		s.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type sendMediaRequest struct {
	To       string `json:"to" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

func (s *Server) handleSendMedia(c *gin.Context) {
	var req sendMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outbound := wire.OutboundMedia{
		Kind:     wire.MediaKind(req.Kind),
		URL:      req.URL,
		MimeType: req.MimeType,
		FileName: req.FileName,
		Caption:  req.Caption,
		Voice:    req.Voice,
	}

	switch {
	case req.Data != "":
		data, err := challenge.DecodeBlob(req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "data must be base64 encoded"})
			return
		}
		outbound.Data = data

	case req.Path != "":
		root := s.cfg.MediaRoot
		if root == "" {
			root = "."
		}
		file, err := media.ReadLocalFile(root, req.Path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outbound.Data = file.Data
		if outbound.MimeType == "" {
			outbound.MimeType = file.MimeType
		}
		if outbound.FileName == "" {
			outbound.FileName = file.FileName
		}

	case req.URL == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of data, path, or url is required"})
		return
	}

	if err := s.session.SendMedia(c.Request.Context(), req.To, outbound); err != nil {
		s.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type sendReactionRequest struct {
	To        string `json:"to" binding:"required"`
	MessageID string `json:"message_id" binding:"required"`
	Emoji     string `json:"emoji" binding:"required"`
}

func (s *Server) handleSendReaction(c *gin.Context) {
	var req sendReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := wire.MessageKey{RemoteID: req.To, ID: req.MessageID}
	if err := s.session.SendReaction(c.Request.Context(), req.To, target, req.Emoji); err != nil {
		s.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type sendReplyRequest struct {
	To       string `json:"to" binding:"required"`
	Text     string `json:"text" binding:"required"`
	QuotedID string `json:"quoted_id" binding:"required"`
}

func (s *Server) handleSendReply(c *gin.Context) {
	var req sendReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.session.SendReply(c.Request.Context(), req.To, req.Text, req.QuotedID); err != nil {
		s.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type sendPresenceRequest struct {
	To       string `json:"to" binding:"required"`
	Presence string `json:"presence,omitempty"`
}

func (s *Server) handleSendPresence(c *gin.Context) {
	var req sendPresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	presence := wire.Presence(req.Presence)
	if req.Presence == "" {
		presence = wire.PresenceComposing
	}

	if err := s.session.SendPresence(c.Request.Context(), req.To, presence); err != nil {
		s.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type createChallengeRequest struct {
	CourseID         int    `json:"course_id" binding:"required"`
	ExternalID       *int   `json:"external_id,omitempty"`
	Type             string `json:"type" binding:"required"`
	Title            string `json:"title" binding:"required"`
	ShortDescription string `json:"short_description" binding:"required"`
	ProblemText      string `json:"problem_text" binding:"required"`
	ProblemAudio     string `json:"problem_audio,omitempty"`
	Media            string `json:"media,omitempty"`
	Attachment       string `json:"attachment,omitempty"`
	AnswerText       string `json:"answer_text,omitempty"`
	AnswerAudio      string `json:"answer_audio,omitempty"`
	HintText         string `json:"hint_text,omitempty"`
	HintAudio        string `json:"hint_audio,omitempty"`
	LearnMore        string `json:"learn_more,omitempty"`
	Difficulty       int    `json:"difficulty,omitempty"`
	Status           string `json:"status,omitempty"`
}

func (s *Server) handleCreateChallenge(c *gin.Context) {
	if s.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge store is disabled"})
		return
	}

	var req createChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := &challenge.Challenge{
		CourseID:         req.CourseID,
		ExternalID:       req.ExternalID,
		Type:             req.Type,
		Title:            req.Title,
		ShortDescription: req.ShortDescription,
		ProblemText:      req.ProblemText,
		AnswerText:       req.AnswerText,
		HintText:         req.HintText,
		LearnMore:        req.LearnMore,
		Difficulty:       req.Difficulty,
		Status:           req.Status,
	}

	blobs := []struct {
		name  string
		value string
		dst   *[]byte
	}{
		{"problem_audio", req.ProblemAudio, &input.ProblemAudio},
		{"media", req.Media, &input.Media},
		{"attachment", req.Attachment, &input.Attachment},
		{"answer_audio", req.AnswerAudio, &input.AnswerAudio},
		{"hint_audio", req.HintAudio, &input.HintAudio},
	}
	for _, blob := range blobs {
		data, err := challenge.DecodeBlob(blob.value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": blob.name + " must be base64 encoded"})
			return
		}
		*blob.dst = data
	}

	stored, err := s.challenges.Insert(input)
	if err != nil {
		if errors.Is(err, challenge.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log.Error("challenge insert failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "challenge insert failed"})
		return
	}

	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleListChallenges(c *gin.Context) {
	if s.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "challenge store is disabled"})
		return
	}

	courseID, _ := strconv.Atoi(c.Query("course_id"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	rows, err := s.challenges.List(courseID, limit)
	if err != nil {
		s.log.Error("challenge list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "challenge list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"challenges": rows})
}

// sendError maps session failures onto status codes: no live connection is
// a conflict the caller can retry, anything else is a gateway failure.
func (s *Server) sendError(c *gin.Context, err error) {
	if errors.Is(err, wire.ErrNotConnected) {
		c.JSON(http.StatusConflict, gin.H{"error": "session is not connected"})
		return
	}
	if strings.Contains(err.Error(), "invalid chat id") || strings.Contains(err.Error(), "ids are numeric") {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.log.Error("outbound send failed", "error", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
