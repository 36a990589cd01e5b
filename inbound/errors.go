package inbound

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-workspaces/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(message string, metadata map[string]any) *goerrors.Error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.WorkspaceErrorBadInput,
		metadata,
	)
}

func inboundInternal(message string, metadata map[string]any) *goerrors.Error {
	return inboundError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.WorkspaceErrorInternal,
		metadata,
	)
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message  string         `json:"message"`
	TextCode string         `json:"text_code"`
	Code     int            `json:"code"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// writeError answers requests that fail before the websocket upgrade.
func writeError(w http.ResponseWriter, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = inboundInternal(err.Error(), nil)
	}
	code := rich.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Message:  rich.Message,
		TextCode: rich.TextCode,
		Code:     code,
		Metadata: core.RedactSensitiveMap(rich.Metadata),
	}})
}
