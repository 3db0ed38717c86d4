package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"github.com/kumarabd/ingestion-plane/miner/pkg/trie"
)

type parseRecord struct {
	ID     int               `json:"id"`
	Line   string            `json:"line"`
	Labels map[string]string `json:"labels,omitempty"`
}

type parseRequest struct {
	Records []parseRecord `json:"records"`
}

type searchRequest struct {
	Line string `json:"line" binding:"required"`
}

type templateRequest struct {
	Template string `json:"template" binding:"required"`
	LineIDs  []int  `json:"line_ids"`
}

// parseHandler mines a batch synchronously and returns one result per record
func (s *HTTP) parseHandler(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	batch := logtypes.Batch{Records: make([]logtypes.Line, 0, len(req.Records))}
	for _, r := range req.Records {
		batch.Records = append(batch.Records, logtypes.Line{ID: r.ID, Labels: r.Labels, Message: r.Line})
	}
	switch {
	case len(batch.Records) == 0:
		s.reject(c, http.StatusBadRequest, "empty_batch", "empty batch")
		return
	case len(batch.Records) > s.config.Bounds.MaxBatch:
		s.reject(c, http.StatusRequestEntityTooLarge, "batch_too_large", "batch too large")
		return
	}

	for i := range batch.Records {
		line, err := s.ingest.NormalizeLine(batch.Records[i])
		if err != nil {
			s.reject(c, http.StatusBadRequest, "invalid_line", err.Error())
			return
		}
		batch.Records[i] = line
	}

	results, err := s.miner.Process(c.Request.Context(), batch.Records)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to mine batch")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	if s.metric != nil {
		s.metric.IncIngestBatchesTotal("parse")
		s.metric.AddIngestRecordsTotal("parse", len(results))
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// searchHandler matches a line without admitting anything
func (s *HTTP) searchHandler(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	template, matched := s.miner.Search(req.Line)
	resp := gin.H{"matched": matched}
	if matched {
		resp["template"] = template
		resp["template_id"] = trie.TemplateID(template)
	}
	c.JSON(http.StatusOK, resp)
}

// listTemplatesHandler exports every live template
func (s *HTTP) listTemplatesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": s.miner.Templates()})
}

// insertTemplateHandler admits a template directly
func (s *HTTP) insertTemplateHandler(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := s.miner.Insert(req.Template, req.LineIDs...)
	if err != nil {
		if errors.Is(err, trie.ErrMalformedTemplate) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// deleteTemplateHandler removes a template and returns its lines
func (s *HTTP) deleteTemplateHandler(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ids, err := s.miner.Delete(req.Template)
	if err != nil {
		if errors.Is(err, trie.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"line_ids": ids})
}
