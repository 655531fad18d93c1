package models

// ModelDescriptor identifies an invocable text-generation backend.
// Backend names a configured completion endpoint; Name is the model
// identifier that endpoint expects on the wire.
type ModelDescriptor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Backend       string `json:"backend"`
	ContextWindow int    `json:"context_window"`
	Default       bool   `json:"default,omitempty"`
}
