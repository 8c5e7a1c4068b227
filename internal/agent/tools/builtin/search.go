package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smaller-world/happytown.life/internal/agent/tools"
	"github.com/smaller-world/happytown.life/internal/constants"
	"github.com/smaller-world/happytown.life/internal/database"
)

// SearchMessages runs a filtered full-text search over the group's history.
type SearchMessages struct {
	Store MessageStore
}

func (t *SearchMessages) Name() string { return "search_messages" }

func (t *SearchMessages) Description() string {
	return "Search this group's message history by keyword, participant and date. Provide all_keywords or any_keywords, not both."
}

func (t *SearchMessages) Parameters() json.RawMessage {
	str := tools.PropertySchema{Type: "string"}
	return tools.MustMarshal(tools.ParameterSchema{
		Type: "object",
		Properties: map[string]tools.PropertySchema{
			"all_keywords": {Type: "array", Items: &str,
				Description: "Keywords that must all appear in a message."},
			"any_keywords": {Type: "array", Items: &str,
				Description: "Keywords of which at least one must appear."},
			"participants": {Type: "array", Items: &str,
				Description: "Phone numbers or ids; matches messages they sent, were mentioned in, or were quoted by."},
			"start_date": {Type: "string", Description: "Inclusive start date, YYYY-MM-DD."},
			"end_date":   {Type: "string", Description: "Inclusive end date, YYYY-MM-DD."},
			"page":       {Type: "integer", Description: "Page number, starting at 1."},
			"limit":      {Type: "integer", Description: fmt.Sprintf("Page size, at most %d.", constants.MaxToolPageSize)},
		},
	})
}

type searchParams struct {
	AllKeywords  []string `json:"all_keywords"`
	AnyKeywords  []string `json:"any_keywords"`
	Participants []string `json:"participants"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Page         int      `json:"page"`
	Limit        int      `json:"limit"`
}

func (t *SearchMessages) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) string {
	var params searchParams
	if err := json.Unmarshal(args, &params); err != nil {
		return "ERROR: search_messages received undecodable arguments"
	}
	if len(params.AllKeywords) > 0 && len(params.AnyKeywords) > 0 {
		return "ERROR: all_keywords and any_keywords cannot be combined; pick one"
	}

	query := database.SearchQuery{
		GroupID:      execCtx.Group.ID,
		AllKeywords:  params.AllKeywords,
		AnyKeywords:  params.AnyKeywords,
		Participants: params.Participants,
		Page:         params.Page,
		PageSize:     clampLimit(params.Limit),
	}

	if params.StartDate != "" {
		day, err := time.Parse("2006-01-02", params.StartDate)
		if err != nil {
			return fmt.Sprintf("ERROR: start_date %q is not a YYYY-MM-DD date", params.StartDate)
		}
		query.From = &day
	}
	if params.EndDate != "" {
		day, err := time.Parse("2006-01-02", params.EndDate)
		if err != nil {
			return fmt.Sprintf("ERROR: end_date %q is not a YYYY-MM-DD date", params.EndDate)
		}
		// inclusive of the whole end day
		end := day.AddDate(0, 0, 1)
		query.To = &end
	}

	result, err := t.Store.SearchMessages(ctx, query)
	if err != nil {
		return fmt.Sprintf("ERROR: search failed: %v", err)
	}

	var b strings.Builder
	b.WriteString(tools.RenderMessages(result.Messages))
	if len(result.Messages) > 0 {
		fmt.Fprintf(&b, "\n(page %d", result.Page)
		if result.HasNextPage {
			b.WriteString(", more results on the next page)")
		} else {
			b.WriteString(", no further pages)")
		}
	}
	return b.String()
}
