package core

// Endpoint describes one route independently of the HTTP framework.
type Endpoint struct {
	Path     string
	Method   string
	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
	RequestBody any
	Responses   map[int]any
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Error string `json:"error"`
}

// Operation IDs shared by the endpoint registry and the HTTP adapters.
const (
	OperationLogin         = "loginWithEmailAndPassword"
	OperationRegister      = "completeRegistration"
	OperationResetPassword = "resetPassword"
)
