package nlquery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/costlens/internal/store"
)

// fakeModel returns scripted completions in order and records the requests
// it saw.
type fakeModel struct {
	responses []string
	err       error
	requests  []openai.ChatCompletionRequest
}

func (f *fakeModel) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if len(f.requests) > len(f.responses) {
		return openai.ChatCompletionResponse{}, errors.New("no scripted response left")
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.responses[len(f.requests)-1]}},
		},
	}, nil
}

// fakeStore serves a fixed schema and result set.
type fakeStore struct {
	schema   map[string][]store.Column
	results  []map[string]any
	queryErr error
	gotQuery string
}

func (f *fakeStore) Schema(context.Context) (map[string][]store.Column, error) {
	return f.schema, nil
}

func (f *fakeStore) Query(_ context.Context, query string) ([]string, []map[string]any, error) {
	f.gotQuery = query
	if f.queryErr != nil {
		return nil, nil, f.queryErr
	}
	return nil, f.results, nil
}

func testSchema() map[string][]store.Column {
	return map[string][]store.Column{
		"cost_data": {
			{Name: "lineItem/UnblendedCost", Type: "TEXT"},
			{Name: "lineItem/ProductCode", Type: "TEXT"},
		},
		"processed_cost_data": {
			{Name: "service", Type: "TEXT"},
			{Name: "cost", Type: "REAL"},
		},
	}
}

func TestAsk_HappyPath(t *testing.T) {
	model := &fakeModel{responses: []string{
		`SELECT service, SUM(cost) FROM processed_cost_data GROUP BY service`,
		"EC2 is your most expensive service at $15.",
	}}
	st := &fakeStore{
		schema:  testSchema(),
		results: []map[string]any{{"service": "EC2", "SUM(cost)": 15.0}},
	}
	svc := New(model, openai.GPT4oMini, st, zerolog.Nop())

	answer, err := svc.Ask(context.Background(), "Which service costs the most?")
	require.NoError(t, err)

	assert.Equal(t, "Which service costs the most?", answer.Question)
	assert.Equal(t, "SELECT service, SUM(cost) FROM processed_cost_data GROUP BY service", answer.SQL)
	assert.Equal(t, 1, answer.RowCount)
	assert.Equal(t, "EC2 is your most expensive service at $15.", answer.Response)
	assert.Equal(t, answer.SQL, st.gotQuery)

	// Two model calls: translation then summary. The translation prompt
	// carries the schema with exact column names.
	require.Len(t, model.requests, 2)
	assert.Contains(t, model.requests[0].Messages[0].Content, "lineItem/UnblendedCost")
	assert.Contains(t, model.requests[1].Messages[1].Content, "Which service costs the most?")
}

func TestAsk_StripsMarkdownFences(t *testing.T) {
	model := &fakeModel{responses: []string{
		"```sql\nSELECT 1\n```",
		"The answer is 1.",
	}}
	st := &fakeStore{schema: testSchema(), results: []map[string]any{{"1": int64(1)}}}
	svc := New(model, openai.GPT4oMini, st, zerolog.Nop())

	answer, err := svc.Ask(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", answer.SQL)
}

func TestAsk_RejectsNonSelect(t *testing.T) {
	model := &fakeModel{responses: []string{"DROP TABLE cost_data"}}
	st := &fakeStore{schema: testSchema()}
	svc := New(model, openai.GPT4oMini, st, zerolog.Nop())

	_, err := svc.Ask(context.Background(), "delete everything")
	require.ErrorIs(t, err, store.ErrNotReadOnly)
	// The guarded statement must never reach the store.
	assert.Empty(t, st.gotQuery)
}

func TestAsk_EmptyResultShortCircuitsSummary(t *testing.T) {
	model := &fakeModel{responses: []string{
		"SELECT * FROM processed_cost_data WHERE service = 'Nothing'",
	}}
	st := &fakeStore{schema: testSchema(), results: nil}
	svc := New(model, openai.GPT4oMini, st, zerolog.Nop())

	answer, err := svc.Ask(context.Background(), "any nothing costs?")
	require.NoError(t, err)
	assert.Equal(t, emptyResultResponse, answer.Response)
	assert.Zero(t, answer.RowCount)
	// No second model call for an empty result set.
	assert.Len(t, model.requests, 1)
}

func TestAsk_ModelErrorPropagates(t *testing.T) {
	model := &fakeModel{err: errors.New("rate limited")}
	svc := New(model, openai.GPT4oMini, &fakeStore{schema: testSchema()}, zerolog.Nop())

	_, err := svc.Ask(context.Background(), "anything")
	assert.ErrorContains(t, err, "rate limited")
}

func TestAsk_QueryErrorPropagates(t *testing.T) {
	model := &fakeModel{responses: []string{"SELECT * FROM missing_table"}}
	st := &fakeStore{schema: testSchema(), queryErr: errors.New("no such table: missing_table")}
	svc := New(model, openai.GPT4oMini, st, zerolog.Nop())

	_, err := svc.Ask(context.Background(), "anything")
	assert.ErrorContains(t, err, "no such table")
}

func TestRenderSchemaDeterministic(t *testing.T) {
	rendered := renderSchema(testSchema())
	assert.Contains(t, rendered, "Table: cost_data")
	assert.Contains(t, rendered, "  - lineItem/ProductCode (TEXT)")
	// Tables render in sorted order so identical schemas produce
	// identical prompts.
	assert.Equal(t, rendered, renderSchema(testSchema()))
	assert.True(t, strings.HasPrefix(rendered, "Table: cost_data"))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fences", in: "SELECT 1", want: "SELECT 1"},
		{name: "sql fence", in: "```sql\nSELECT 1\n```", want: "SELECT 1"},
		{name: "bare fence", in: "```\nSELECT 1\n```", want: "SELECT 1"},
		{name: "whitespace", in: "  SELECT 1  ", want: "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
