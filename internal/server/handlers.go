package server

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/rshade/costlens/internal/analysis"
	"github.com/rshade/costlens/internal/ingest"
	"github.com/rshade/costlens/internal/nlquery"
	"github.com/rshade/costlens/internal/store"
)

// Asker answers natural-language questions. *nlquery.Service satisfies it;
// tests substitute a fake, and a nil Asker disables /ask.
type Asker interface {
	Ask(ctx context.Context, question string) (*nlquery.Answer, error)
}

// uploadResponse mirrors the shape the dashboard frontend consumes.
type uploadResponse struct {
	Message         string                    `json:"message"`
	Rows            int                       `json:"rows"`
	Columns         []string                  `json:"columns"`
	Results         []ingest.CostEvent        `json:"results"`
	Anomalies       []analysis.Anomaly        `json:"anomalies"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
	Summary         analysis.Summary          `json:"summary"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() { _ = file.Close() }()

	tableName := r.FormValue("table_name")
	if tableName == "" {
		tableName = DefaultTableName
	}
	if err := store.ValidateTableName(tableName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	header, records, err := ingest.ReadRecords(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := ingest.BuildCostEvents(records)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest,
			"No valid cost data found in CSV. Please check column names and data format.")
		return
	}

	result := analysis.Analyze(events, s.now())

	if err := s.store.ReplaceRawTable(r.Context(), tableName, header, records); err != nil {
		s.logger.Error().Err(err).Str("table", tableName).Msg("persisting raw table failed")
		writeError(w, http.StatusInternalServerError, "Failed to store uploaded data")
		return
	}
	if err := s.store.ReplaceCostEvents(r.Context(), events); err != nil {
		s.logger.Error().Err(err).Msg("persisting cost events failed")
		writeError(w, http.StatusInternalServerError, "Failed to store processed data")
		return
	}

	s.metrics.uploads.Inc()
	s.metrics.rowsIn.Add(float64(len(events)))
	s.metrics.rowsDropped.Add(float64(len(records) - len(events)))
	s.metrics.batchCost.Set(result.Summary.TotalCost)

	s.logger.Info().
		Str("table", tableName).
		Int("rows", len(records)).
		Int("events", len(events)).
		Int("anomalies", len(result.Anomalies)).
		Int("recommendations", len(result.Recommendations)).
		Float64("total_cost", result.Summary.TotalCost).
		Msg("upload processed")

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:         "File uploaded and processed successfully",
		Rows:            len(records),
		Columns:         header,
		Results:         result.Events,
		Anomalies:       orEmpty(result.Anomalies),
		Recommendations: orEmpty(result.Recommendations),
		Summary:         result.Summary,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.store.Schema(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("schema introspection failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.store.Tables(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("listing tables failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "No query provided")
		return
	}

	if err := store.ValidateReadOnly(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, "Only SELECT queries are allowed")
		return
	}

	columns, results, err := s.store.Query(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.queries.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"results":   results,
		"row_count": len(results),
		"columns":   columns,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "No question provided")
		return
	}

	if s.asker == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"error":   "natural language querying is not configured",
		})
		return
	}

	answer, err := s.asker.Ask(r.Context(), req.Question)
	if err != nil {
		s.logger.Error().Err(err).Str("question", req.Question).Msg("question failed")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":  false,
			"question": req.Question,
			"error":    err.Error(),
			"response": "I encountered an error while processing your question: " + err.Error(),
		})
		return
	}

	s.metrics.questions.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"question":  answer.Question,
		"response":  answer.Response,
		"sql_query": answer.SQL,
		"results":   answer.Results,
		"row_count": answer.RowCount,
	})
}

// orEmpty keeps empty collections encoding as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
