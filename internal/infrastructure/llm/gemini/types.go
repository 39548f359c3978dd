package gemini

// Request/response envelope types for the Google Gemini REST API.

type Request struct {
	Contents         []Content      `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type Response struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content Content `json:"content"`
}
