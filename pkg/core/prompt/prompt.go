// Package prompt holds the prompt templates sent to the extraction model.
// Prompts are compiled in and may be overridden by JSON files at runtime,
// making it easy to tune wording without code changes.
package prompt

// PromptTemplate represents a reusable prompt with metadata
type PromptTemplate struct {
	ID             string `json:"id"`                   // Unique identifier (e.g., "extraction.new_product")
	Name           string `json:"name"`                 // Human-readable name
	Description    string `json:"description"`          // Description of prompt purpose
	SystemPrompt   string `json:"system_prompt"`        // The system prompt content
	UserPromptTmpl string `json:"user_prompt_template"` // Go template for user prompt
	Version        string `json:"version"`              // Version for tracking changes
}

// ExtractionVars are the values available to the extraction user template.
type ExtractionVars struct {
	Ticker     string
	FilingTime string
	Text       string
}

// ExtractionPromptID identifies the new-product extraction prompt.
const ExtractionPromptID = "extraction.new_product"

const extractionSystemPrompt = `You are a financial analyst reading SEC 8-K filings.
Your only task is to find announcements of NEW PRODUCTS in the filing text.

Rules:
- Report a new product only when the filing itself announces it.
- Ignore earnings results, dividends, acquisitions and mergers, executive or board changes, share buybacks, debt offerings and financial statements.
- Describe the product in at most 180 characters.
- Respond with exactly one JSON object and nothing else: no prose, no markdown.`

const extractionUserTemplate = `Filing for stock {{.Ticker}} filed at {{.FilingTime}}.

Return this JSON object, filling "Company Name", "New Product" and "Product Description" from the filing. Keep "Stock Name" and "Filing Time" as given. If the filing announces no new product, leave "New Product" and "Product Description" empty.

{
  "Company Name": "",
  "Stock Name": {{json .Ticker}},
  "Filing Time": {{json .FilingTime}},
  "New Product": "",
  "Product Description": ""
}

Filing text:
"""
{{.Text}}
"""`

func builtinPrompts() []*PromptTemplate {
	return []*PromptTemplate{
		{
			ID:             ExtractionPromptID,
			Name:           "New product extraction",
			Description:    "Extracts one new-product announcement from an 8-K filing as a five-field JSON object",
			SystemPrompt:   extractionSystemPrompt,
			UserPromptTmpl: extractionUserTemplate,
			Version:        "1",
		},
	}
}
