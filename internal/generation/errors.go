package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

var (
	ErrValidation    = errors.New("invalid generation request")
	ErrNotConfigured = errors.New("no upstream model configured")
)

const maxScopeLength = 200

// Validate checks that both request fields carry text.
func Validate(req models.GenerationRequest) error {
	if strings.TrimSpace(req.Scope) == "" {
		return fmt.Errorf("%w: scope is required", ErrValidation)
	}
	if len([]rune(req.Scope)) > maxScopeLength {
		return fmt.Errorf("%w: scope must be at most %d characters", ErrValidation, maxScopeLength)
	}
	if strings.TrimSpace(req.RequestText) == "" {
		return fmt.Errorf("%w: requestText is required", ErrValidation)
	}
	return nil
}

// UserMessage is the short text shown to users for a failure kind.
func UserMessage(kind models.ErrorKind) string {
	switch kind {
	case models.ErrorKindTimeout:
		return "O tempo limite para gerar o documento foi excedido. Tente novamente."
	case models.ErrorKindRateLimited:
		return "O serviço de IA está recebendo muitas solicitações. Aguarde alguns instantes e tente novamente."
	case models.ErrorKindQuotaExceeded:
		return "A cota do serviço de IA foi esgotada. Contate o administrador."
	case models.ErrorKindModelUnavailable:
		return "Nenhum modelo de IA está disponível no momento. Tente novamente mais tarde."
	case models.ErrorKindBadRequest:
		return "O serviço de IA recusou a solicitação. Revise o texto enviado."
	default:
		return "Erro interno ao gerar o documento."
	}
}
