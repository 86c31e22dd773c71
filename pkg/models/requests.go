package models

// QueryRequest carries a raw Cypher statement
type QueryRequest struct {
	Query  string                 `json:"query" validate:"required"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// QueryResponse wraps raw query rows
type QueryResponse struct {
	Rows  []map[string]interface{} `json:"rows"`
	Count int                      `json:"count"`
}

// LocalIngestRequest asks for a local directory to be ingested
type LocalIngestRequest struct {
	Path string `json:"path" validate:"required"`
}

// GitHubIngestRequest asks for a GitHub repository to be ingested
type GitHubIngestRequest struct {
	URL string `json:"url" validate:"required,githuburl"`
}

// IndexRequest asks for a codebase to be chunked, embedded and extracted
type IndexRequest struct {
	RootDir string `json:"root_dir" validate:"required"`
}

// QARequest is a natural language question about the graph
type QARequest struct {
	Query string `json:"query" validate:"required"`
	K     int    `json:"k,omitempty" validate:"omitempty,min=1,max=100"`
}

// QAResponse holds the answer and the steps used to produce it
type QAResponse struct {
	Answer            string                   `json:"answer"`
	IntermediateSteps []map[string]interface{} `json:"intermediate_steps"`
}

// ContextRequest asks for similar chunks
type ContextRequest struct {
	Query string `json:"query" validate:"required"`
	K     int    `json:"k,omitempty" validate:"omitempty,min=1,max=100"`
}

// ExampleQuery pairs a question with the Cypher that answers it
type ExampleQuery struct {
	Question string `json:"question"`
	Cypher   string `json:"cypher"`
}

// WorkspaceInitRequest names the directory the explorer should scan
type WorkspaceInitRequest struct {
	Path string `json:"path"`
}

// WorkspaceCommandRequest is a natural language or slash command
type WorkspaceCommandRequest struct {
	Command string `json:"command" validate:"required"`
}
