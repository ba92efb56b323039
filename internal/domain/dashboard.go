package domain

import "time"

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry of a session's chat history.
type ChatMessage struct {
	Role    ChatRole  `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ChatContext is the dashboard state shared with the assistant.
type ChatContext struct {
	Probability *float64 `json:"probability,omitempty"`
	StartYear   int      `json:"start_year"`
	EndYear     int      `json:"end_year"`
	Variable    string   `json:"variable"`
}

// Section wraps one dashboard panel. A panel that could not be built carries
// Available=false and a user-facing message; the rest of the page still renders.
type Section[T any] struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
	Data      T      `json:"data,omitempty"`
}

// Outlook is the last twelve months of precipitation plus a projected month.
type Outlook struct {
	History    []MonthlyPoint `json:"history"`
	Projection MonthlyPoint   `json:"projection"`
}

// VariableSummary describes the numeric dataset columns available to filters.
type VariableSummary struct {
	Variables []string `json:"variables"`
	YearMin   int      `json:"year_min"`
	YearMax   int      `json:"year_max"`
}

// DashboardData aggregates every dashboard section
type DashboardData struct {
	Variables   Section[VariableSummary]      `json:"variables"`
	Outlook     Section[Outlook]              `json:"outlook"`
	Probability Section[[]DroughtProbability] `json:"probability"`
	Trends      Section[[]TrendResult]        `json:"trends"`
	Latest      Section[Observation]          `json:"latest"`
	Timestamp   time.Time                     `json:"timestamp"`
}
