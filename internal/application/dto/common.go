package dto

// ErrorResponse cuerpo de error HTTP. Code es estable (ver inventory.ErrorCode); Details
// lleva los valores del rechazo cuando los hay (solicitado, disponible, etc.).
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}
