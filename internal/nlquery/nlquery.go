// Package nlquery answers natural-language questions about the persisted
// billing data. Each question makes two chat-model calls: one to translate
// the question into a single SELECT statement against the current schema,
// and one to summarize the result set. The generated statement is
// re-validated with the store's read-only guard before execution; the
// model is a collaborator, not a trusted one.
package nlquery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/rshade/costlens/internal/store"
)

// maxRowsInPrompt bounds how many result rows are fed back to the model
// when summarizing. Larger result sets send only the head.
const maxRowsInPrompt = 5

const emptyResultResponse = "I couldn't find any data matching your question."

const sqlSystemPrompt = `You are an expert SQL query generator. Given a database schema and a natural language question, generate a valid SQLite SELECT query.

Database Schema:
%s

CRITICAL RULES:
1. Only generate SELECT queries
2. Use proper SQLite syntax
3. Include appropriate WHERE, GROUP BY, ORDER BY clauses as needed
4. Return only the SQL query, no explanations
5. Use table and column names EXACTLY as they appear in the schema, including forward slashes and special characters
6. Column names containing special characters such as / must be enclosed in double quotes, e.g. "lineItem/UnblendedCost"
7. For cost queries, use "lineItem/UnblendedCost" from the raw table when present, otherwise cost from processed_cost_data
8. For aggregations, use functions like COUNT, SUM, AVG, MAX, MIN
9. Handle case-insensitive text searches with the LOWER() function
10. When looking for the highest cost, use ORDER BY with DESC and LIMIT 1`

const summarySystemPrompt = `You are a helpful data analyst. Given a user's question and the results from a database query, provide a clear, concise natural language response that answers their question.

Rules:
1. Be conversational and helpful
2. Summarize key findings from the data
3. If there are many results, provide highlights or patterns
4. Use specific numbers and data points when relevant
5. Keep the response focused on answering the original question`

// ChatModel is the slice of the OpenAI client this service uses. The
// concrete *openai.Client satisfies it; tests substitute a scripted fake.
type ChatModel interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// SchemaQuerier is what the translator needs from the store: schema for
// prompt context and query execution for the generated statement.
type SchemaQuerier interface {
	Schema(ctx context.Context) (map[string][]store.Column, error)
	Query(ctx context.Context, query string) ([]string, []map[string]any, error)
}

// Answer is the end-to-end result of one question.
type Answer struct {
	Question string           `json:"question"`
	SQL      string           `json:"sql_query"`
	Results  []map[string]any `json:"results"`
	RowCount int              `json:"row_count"`
	Response string           `json:"response"`
}

// Service translates questions end-to-end.
type Service struct {
	model   ChatModel
	modelID string
	store   SchemaQuerier
	logger  zerolog.Logger
}

// New builds a Service. modelID names the chat model to use, e.g.
// openai.GPT4oMini.
func New(model ChatModel, modelID string, st SchemaQuerier, logger zerolog.Logger) *Service {
	return &Service{model: model, modelID: modelID, store: st, logger: logger}
}

// Ask runs the full flow: generate SQL, guard it, execute it, summarize
// the results. Any failure aborts the question; there is no partial answer.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	sqlText, err := s.generateSQL(ctx, question)
	if err != nil {
		return nil, err
	}

	if err := store.ValidateReadOnly(sqlText); err != nil {
		s.logger.Warn().Str("sql", sqlText).Msg("model produced a non-SELECT statement")
		return nil, fmt.Errorf("generated query rejected: %w", err)
	}

	_, results, err := s.store.Query(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute generated query: %w", err)
	}

	response, err := s.summarize(ctx, question, sqlText, results)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("question", question).
		Str("sql", sqlText).
		Int("rows", len(results)).
		Msg("question answered")

	return &Answer{
		Question: question,
		SQL:      sqlText,
		Results:  results,
		RowCount: len(results),
		Response: response,
	}, nil
}

func (s *Service) generateSQL(ctx context.Context, question string) (string, error) {
	schema, err := s.store.Schema(ctx)
	if err != nil {
		return "", fmt.Errorf("load schema for prompt: %w", err)
	}

	resp, err := s.model.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(sqlSystemPrompt, renderSchema(schema))},
			{Role: openai.ChatMessageRoleUser, Content: "Generate SQL query for: " + question},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate query: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate query: model returned no choices")
	}
	return stripFences(resp.Choices[0].Message.Content), nil
}

func (s *Service) summarize(ctx context.Context, question, sqlText string, results []map[string]any) (string, error) {
	if len(results) == 0 {
		return emptyResultResponse, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query executed: %s\n", sqlText)
	fmt.Fprintf(&b, "Number of results: %d\n", len(results))
	shown := results
	if len(shown) > maxRowsInPrompt {
		shown = shown[:maxRowsInPrompt]
		fmt.Fprintf(&b, "First %d results: ", maxRowsInPrompt)
	} else {
		b.WriteString("Results: ")
	}
	encoded, err := json.Marshal(shown)
	if err != nil {
		return "", fmt.Errorf("encode results for prompt: %w", err)
	}
	b.Write(encoded)

	resp, err := s.model.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(
				"Original question: %s\n\n%s\n\nPlease provide a natural language response answering the user's question based on this data.",
				question, b.String())},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize results: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize results: model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// renderSchema formats the store schema for the prompt, tables in sorted
// order so identical schemas always produce identical prompts.
func renderSchema(schema map[string][]store.Column) string {
	tables := make([]string, 0, len(schema))
	for table := range schema {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var b strings.Builder
	for i, table := range tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Table: %s\nColumns:\n", table)
		for _, col := range schema[table] {
			fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.Type)
		}
	}
	return b.String()
}

// stripFences removes a markdown code fence the model may wrap around the
// statement, with or without a language tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```sql")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
