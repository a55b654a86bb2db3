package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"csvquery-backend/internal/domain"
)

// Summarizer turns raw query results into a short natural-language answer.
type Summarizer interface {
	Summarize(ctx context.Context, question, sql string, preview domain.TablePreview) (string, error)
}

// Summarize asks the model for a concise answer grounded in the executed
// query and its result preview.
func (c *Client) Summarize(ctx context.Context, question, sql string, preview domain.TablePreview) (string, error) {
	previewJSON, err := json.MarshalIndent(preview, "", "  ")
	if err != nil {
		return "", err
	}

	systemPrompt := `You are a data analyst. Given a user's question, the SQL that answered it, and a preview of the results, write a concise answer in plain language. State concrete numbers from the results. Do not mention SQL unless asked.`

	userPrompt := fmt.Sprintf("Question: %s\n\nSQL executed:\n%s\n\nResult preview (%d total rows):\n%s",
		question, sql, preview.TotalRows, previewJSON)

	return c.complete(ctx, systemPrompt, userPrompt, 400)
}
