package agent

import "encoding/json"

// Type distinguishes customer-facing from internal agents.
type Type string

const (
	TypeCustomer Type = "customer"
	TypeInternal Type = "internal"
)

// SpecRequest describes the agent to draft topics for.
type SpecRequest struct {
	AgentType          Type   `json:"agentType" yaml:"agentType"`
	Role               string `json:"role" yaml:"role"`
	CompanyName        string `json:"companyName" yaml:"companyName"`
	CompanyDescription string `json:"companyDescription" yaml:"companyDescription"`
	CompanyWebsite     string `json:"companyWebsite,omitempty" yaml:"companyWebsite,omitempty"`
	MaxTopics          int    `json:"maxNumOfTopics,omitempty" yaml:"maxNumOfTopics,omitempty"`
}

// Topic is one drafted conversation topic.
type Topic struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Spec is a generated agent specification, persisted as YAML.
type Spec struct {
	AgentType          Type    `yaml:"agentType"`
	Role               string  `yaml:"role"`
	CompanyName        string  `yaml:"companyName"`
	CompanyDescription string  `yaml:"companyDescription"`
	CompanyWebsite     string  `yaml:"companyWebsite,omitempty"`
	Topics             []Topic `yaml:"topics"`
}

// CreateConfig is the payload for agent creation. It is validated
// against createConfigSchema before any network call.
type CreateConfig struct {
	AgentType     Type           `json:"agentType"`
	SaveAgent     bool           `json:"saveAgent"`
	AgentSettings AgentSettings  `json:"agentSettings"`
	Generation    GenerationInfo `json:"generationInfo"`
	MaxTopics     int            `json:"maxNumOfTopics,omitempty"`
}

// AgentSettings names and tunes the agent being created.
type AgentSettings struct {
	AgentName    string `json:"agentName"`
	AgentAPIName string `json:"agentApiName,omitempty"`
	UserID       string `json:"userId,omitempty"`
	EnrichLogs   bool   `json:"enrichLogs,omitempty"`
	Tone         string `json:"tone,omitempty"`
	Language     string `json:"language,omitempty"`
}

// GenerationInfo carries the business context topics are drawn from.
type GenerationInfo struct {
	Role               string  `json:"role"`
	CompanyName        string  `json:"companyName"`
	CompanyDescription string  `json:"companyDescription"`
	CompanyWebsite     string  `json:"companyWebsite,omitempty"`
	PreDefinedTopics   []Topic `json:"preDefinedTopics,omitempty"`
}

// CreateResult is the outcome of a create-agent call. Raw holds the
// full platform response for callers needing fields beyond the IDs.
type CreateResult struct {
	IsSuccess    bool            `json:"isSuccess"`
	BotID        string          `json:"botId"`
	BotVersionID string          `json:"botVersionId"`
	Raw          json.RawMessage `json:"-"`
}

// CompileResult carries the compiled artifact reference.
type CompileResult struct {
	CompilationID string          `json:"compilationId"`
	Raw           json.RawMessage `json:"-"`
}

// PublishResult identifies the published agent version.
type PublishResult struct {
	AgentID   string          `json:"agentId"`
	VersionID string          `json:"versionId"`
	Status    string          `json:"status"`
	Raw       json.RawMessage `json:"-"`
}
