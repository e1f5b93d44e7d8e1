package api

// EventRequest is the body the hosting platform posts for each lifecycle event.
type EventRequest struct {
	Command string     `json:"command" binding:"required"`
	Service ServiceRef `json:"service"`
}

// ServiceRef identifies the service an event is about.
type ServiceRef struct {
	ID        string `json:"id" binding:"required"`
	IPAddress string `json:"ipAddress"`
}

// EventResponse carries the outcome of a handled event. Status is "Ok",
// "SafeError" or, for hard failures, "Error".
type EventResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ServiceResponse is the stored state of one service.
type ServiceResponse struct {
	ID        string            `json:"id"`
	Variables map[string]string `json:"variables"`
	AppData   map[string]string `json:"appData"`
}

// VariableRequest sets one live variable.
type VariableRequest struct {
	Value *string `json:"value" binding:"required"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response.
type StatusResponse struct {
	Status string `json:"status"`
}
