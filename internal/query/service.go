package query

import (
	"context"
	"fmt"

	"csvquery-backend/internal/domain"
	"csvquery-backend/internal/llm"
	"csvquery-backend/internal/logging"
	"csvquery-backend/internal/store"
)

const previewRows = 10

// Engine is the read side of the warehouse used by the query flow.
type Engine interface {
	TableSchema(ctx context.Context, userID, tableName string) ([]domain.Column, error)
	RowCount(ctx context.Context, userID, tableName string) (int64, error)
	QueryRows(ctx context.Context, userID, query string) ([]string, []map[string]any, error)
}

// Service answers natural-language questions about a dataset version by
// generating SQL, executing it, and summarizing the results.
type Service struct {
	store      store.Store
	engine     Engine
	generator  llm.SQLGenerator
	summarizer llm.Summarizer
}

// NewService constructs a Service instance.
func NewService(versions store.Store, engine Engine, gen llm.SQLGenerator, sum llm.Summarizer) *Service {
	return &Service{
		store:      versions,
		engine:     engine,
		generator:  gen,
		summarizer: sum,
	}
}

// Ask runs the full question-to-answer flow for one request.
func (s *Service) Ask(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	versionID := req.VersionID
	if versionID == "" || versionID == "latest" {
		latest, err := s.store.LatestVersion(ctx, req.DatasetID, req.UserID)
		if err != nil {
			return nil, err
		}
		versionID = latest.VersionID
	}

	tableName := domain.TableName(req.DatasetID, versionID)
	schema, err := s.engine.TableSchema(ctx, req.UserID, tableName)
	if err != nil {
		return nil, err
	}

	// Sample rows ground the prompt in real value formats; failures here
	// only degrade the prompt, never the request.
	_, samples, err := s.engine.QueryRows(ctx, req.UserID,
		fmt.Sprintf(`SELECT * FROM %q ORDER BY RANDOM() LIMIT 5`, tableName))
	if err != nil {
		logging.Warnf(ctx, "sampling %s failed: %v", tableName, err)
		samples = nil
	}

	sql, err := s.generator.GenerateSQL(ctx, req.Question, tableName, schema, samples)
	if err != nil {
		return nil, err
	}
	logging.Infof(ctx, "generated SQL for %s: %s", tableName, sql)

	if err := llm.VerifySQLSafety(sql, tableName); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrSQLGeneration, err)
	}

	columns, results, err := s.engine.QueryRows(ctx, req.UserID, sql)
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	preview := domain.TablePreview{
		Columns:   columns,
		Rows:      results,
		TotalRows: len(results),
	}
	if len(preview.Rows) > previewRows {
		preview.Rows = preview.Rows[:previewRows]
	}

	rawAnswer := describeResults(results)

	answer, err := s.summarizer.Summarize(ctx, req.Question, sql, preview)
	if err != nil {
		logging.Warnf(ctx, "result summarization failed, falling back: %v", err)
		answer = rawAnswer
	}

	if err := s.store.LogQuery(ctx, &domain.QueryLog{
		DatasetID:    req.DatasetID,
		VersionID:    versionID,
		UserID:       req.UserID,
		Question:     req.Question,
		GeneratedSQL: sql,
		RowCount:     len(results),
	}); err != nil {
		logging.Warnf(ctx, "failed to log query: %v", err)
	}

	return &domain.QueryResponse{
		Answer:       answer,
		RawAnswer:    rawAnswer,
		GeneratedSQL: sql,
		Preview:      preview,
	}, nil
}

// History returns recent questions asked against a dataset.
func (s *Service) History(ctx context.Context, datasetID, userID string, limit int) (*domain.QueryHistory, error) {
	logs, err := s.store.QueryHistory(ctx, datasetID, userID, limit)
	if err != nil {
		return nil, err
	}
	return &domain.QueryHistory{Queries: logs, TotalCount: len(logs)}, nil
}

// describeResults produces the count-based fallback answer.
func describeResults(results []map[string]any) string {
	if len(results) == 0 {
		return "No results found."
	}
	if len(results) == 1 && len(results[0]) == 1 {
		for col, val := range results[0] {
			return fmt.Sprintf("%s: %v", col, val)
		}
	}
	return fmt.Sprintf("Found %d results.", len(results))
}
