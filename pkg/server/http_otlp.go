package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
)

// maxOTLPBodyFactor bounds a request body relative to the per-line cap
const maxOTLPBodyFactor = 4

// otlpHandler handles OTLP/HTTP protobuf log ingestion
func (s *HTTP) otlpHandler(c *gin.Context, start time.Time) {
	reader, err := getBodyReader(c.Request)
	if err != nil {
		_ = c.Error(err)
		s.reject(c, http.StatusBadRequest, "bad_body", "invalid body")
		return
	}
	defer reader.Close()

	limit := int64(s.config.Bounds.MaxMessageBytes) * int64(s.config.Bounds.MaxBatch) * maxOTLPBodyFactor
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read request body")
		s.reject(c, http.StatusBadRequest, "bad_body", "Failed to read request body")
		return
	}
	if int64(len(body)) > limit {
		s.log.Warn().Int("size", len(body)).Int64("max_size", limit).Msg("Request body too large")
		s.reject(c, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large")
		return
	}

	// Parse OTLP request
	req := plogotlp.NewExportRequest()
	if err := req.UnmarshalProto(body); err != nil {
		s.log.Error().Err(err).Msg("Failed to unmarshal OTLP request")
		s.reject(c, http.StatusBadRequest, "bad_otlp", "Invalid OTLP request format")
		return
	}

	s.accept(c, start, "otlp", convertOTLPToBatch(req))
}

// convertOTLPToBatch flattens an OTLP export request into lines. Resource
// attributes, scope and severity become labels.
func convertOTLPToBatch(otlpReq plogotlp.ExportRequest) logtypes.Batch {
	var records []logtypes.Line
	logs := otlpReq.Logs()

	resourceLogs := logs.ResourceLogs()
	for i := 0; i < resourceLogs.Len(); i++ {
		resourceLog := resourceLogs.At(i)
		scopeLogs := resourceLog.ScopeLogs()

		for j := 0; j < scopeLogs.Len(); j++ {
			scopeLog := scopeLogs.At(j)
			logRecords := scopeLog.LogRecords()

			for k := 0; k < logRecords.Len(); k++ {
				logRecord := logRecords.At(k)

				timestamp := logRecord.Timestamp().AsTime()
				if logRecord.Timestamp() == 0 {
					timestamp = time.Now()
				}

				// Extract labels from resource attributes
				labels := make(map[string]string)
				resourceLog.Resource().Attributes().Range(func(k string, v pcommon.Value) bool {
					if v.Type() == pcommon.ValueTypeStr {
						labels[k] = v.Str()
					}
					return true
				})

				// Add scope information to labels
				if scopeLog.Scope().Name() != "" {
					labels["scope.name"] = scopeLog.Scope().Name()
				}
				if scopeLog.Scope().Version() != "" {
					labels["scope.version"] = scopeLog.Scope().Version()
				}

				// Add standard OTLP fields to labels
				if logRecord.SeverityNumber() != 0 {
					labels["severity_number"] = fmt.Sprintf("%d", logRecord.SeverityNumber())
				}
				if logRecord.SeverityText() != "" {
					labels["severity_text"] = logRecord.SeverityText()
				}
				if !logRecord.TraceID().IsEmpty() {
					labels["trace_id"] = logRecord.TraceID().String()
				}
				if !logRecord.SpanID().IsEmpty() {
					labels["span_id"] = logRecord.SpanID().String()
				}

				records = append(records, logtypes.Line{
					Timestamp: timestamp,
					Labels:    labels,
					Message:   logRecord.Body().AsString(),
				})
			}
		}
	}

	return logtypes.Batch{Records: records}
}
