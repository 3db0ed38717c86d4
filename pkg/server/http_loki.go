package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/loki/pkg/logproto"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
)

// lokiHandler handles Grafana Loki protocol log ingestion
func (s *HTTP) lokiHandler(c *gin.Context, start time.Time) {
	// Handle optional gzip compression
	reader, err := getBodyReader(c.Request)
	if err != nil {
		_ = c.Error(err)
		s.reject(c, http.StatusBadRequest, "bad_body", "invalid body")
		return
	}
	defer reader.Close()

	// Parse Loki push request using official logproto library
	var lokiReq logproto.PushRequest
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&lokiReq); err != nil {
		_ = c.Error(err)
		s.reject(c, http.StatusBadRequest, "bad_loki_json", "invalid loki request format")
		return
	}

	s.accept(c, start, "loki", convertLokiToBatch(&lokiReq))
}

// convertLokiToBatch flattens the streams of a Loki push request into lines
func convertLokiToBatch(lokiReq *logproto.PushRequest) logtypes.Batch {
	var records []logtypes.Line

	for _, stream := range lokiReq.Streams {
		// Parse Loki labels string format: "{key1=\"value1\",key2=\"value2\"}"
		labels := parseLokiLabels(stream.Labels)

		for _, entry := range stream.Entries {
			records = append(records, logtypes.Line{
				Timestamp: entry.Timestamp,
				Labels:    labels,
				Message:   entry.Line,
			})
		}
	}

	return logtypes.Batch{Records: records}
}

// parseLokiLabels parses Loki labels string format: "{key1=\"value1\",key2=\"value2\"}"
func parseLokiLabels(labelsStr string) map[string]string {
	labels := make(map[string]string)

	// Remove outer braces
	labelsStr = strings.Trim(labelsStr, "{}")
	if labelsStr == "" {
		return labels
	}

	// Split by comma and parse each key=value pair
	pairs := strings.Split(labelsStr, ",")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		// Find the first = sign
		eqIndex := strings.Index(pair, "=")
		if eqIndex == -1 {
			continue
		}

		key := strings.TrimSpace(pair[:eqIndex])
		value := strings.TrimSpace(pair[eqIndex+1:])

		// Remove quotes from value
		value = strings.Trim(value, "\"")

		labels[key] = value
	}

	return labels
}
