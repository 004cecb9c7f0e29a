package ai

import (
	"fmt"
	"strings"

	"github.com/shanehull/marketwrap/internal/types"
)

// MaxSummaryWords is the exclusive upper bound on summary body length.
const MaxSummaryWords = 500

const summaryInstruction = `
# [INSTRUCTION]

You are a seasoned financial market analyst writing the daily US market wrap for a Telegram channel.

Summarize the provided news into a market wrap of UNDER 500 words.

- Open with a one or two sentence overview of how the S&P 500, Nasdaq and Dow Jones closed.
- Follow with 3 to 6 short bullet points covering the major movers, sectors, macro data and central bank news.
- Include index levels, percentages, company names and tickers where the news provides them.
- Keep a neutral, professional market-wrap tone. No investment advice.
- Use only facts found in the news. Do not invent numbers.

# [FORMAT]

- Plain text with "- " bullets. Use *single asterisks* sparingly for emphasis.
- Do not add a title, date or sign-off. They are added separately.
`

const fallbackPromptTemplate = "Write a concise (<300 words) US market wrap based on the news:\n%s"

// buildSummaryPrompt renders the news bundle as the user prompt.
func buildSummaryPrompt(bundle types.NewsBundle) string {
	var sb strings.Builder

	sb.WriteString("# [NEWS]\n\n")
	for i, s := range bundle.Snippets {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, s.Title))
		if s.PublishedDate != "" {
			sb.WriteString(fmt.Sprintf("   Published: %s\n", s.PublishedDate))
		}
		if s.Content != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", s.Content))
		}
		if s.URL != "" {
			sb.WriteString(fmt.Sprintf("   Source: %s\n", s.URL))
		}
		sb.WriteString("\n")
	}

	if bundle.Answer != "" {
		sb.WriteString("# [SEARCH OVERVIEW]\n\n")
		sb.WriteString(bundle.Answer)
		sb.WriteString("\n")
	}

	return sb.String()
}

// BuildFallbackPrompt renders headlines as "- title: url" lines.
func BuildFallbackPrompt(snippets []types.Snippet) string {
	lines := make([]string, 0, len(snippets))
	for _, s := range snippets {
		lines = append(lines, fmt.Sprintf("- %s: %s", s.Title, s.URL))
	}
	return fmt.Sprintf(fallbackPromptTemplate, strings.Join(lines, "\n"))
}
