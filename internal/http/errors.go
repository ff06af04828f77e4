package http

import (
	"errors"
	"net/http"
	"strings"

	"carteira/internal/core"
	"carteira/internal/identity"
	"carteira/internal/ledger"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

// User-facing messages.
const (
	MsgGenericError       = "Erro ao processar a solicitação. Tente novamente."
	MsgInvalidRequest     = "Requisição inválida"
	MsgCheckFields        = "Verifique os campos destacados"
	MsgNotFound           = "Registro não encontrado"
	MsgUnauthorized       = "Sessão expirada. Faça login novamente."
	MsgInvalidLogin       = "E-mail ou senha incorretos"
	MsgRateLimited        = "Muitas requisições. Aguarde um momento e tente novamente."
	MsgCategoryInUse      = "Não é possível excluir: categoria tem movimentações vinculadas"
	MsgDuplicateData      = "Dados duplicados detectados"
	MsgLinkedRecord       = "Registro vinculado a outros dados"
	MsgServiceUnavailable = "Serviço indisponível"
)

// fieldMessages translates domain validation errors, matched by prefix since
// date errors carry the rejected input.
var fieldMessages = []struct{ prefix, msg string }{
	{core.ErrInvalidAmount.Error(), "Valor inválido"},
	{core.ErrNegativeAmount.Error(), "Valor não pode ser negativo"},
	{core.ErrEmptyName.Error(), "Nome é obrigatório"},
	{core.ErrNameTooLong.Error(), "Nome deve ter no máximo 100 caracteres"},
	{core.ErrDescriptionTooLong.Error(), "Descrição deve ter no máximo 500 caracteres"},
	{core.ErrInvalidKind.Error(), "Tipo inválido"},
	{core.ErrEmptyCategory.Error(), "Selecione uma categoria"},
	{core.ErrInvalidDate.Error(), "Data inválida"},
	{core.ErrInvalidClosingDay.Error(), "Dia de fechamento deve estar entre 1 e 31"},
	{core.ErrInvalidInstallments.Error(), "Número de parcelas deve ser pelo menos 1"},
	{core.ErrInvalidStatus.Error(), "Status inválido"},
	{"invalid status", "Status inválido"},
	{"invalid period", "Período inválido"},
	{services.ErrCategoryNotFound.Error(), "Categoria não encontrada"},
	{services.ErrCategoryKind.Error(), "Categoria incompatível com o tipo da operação"},
}

func localize(msg string) string {
	for _, m := range fieldMessages {
		if strings.HasPrefix(msg, m.prefix) {
			return m.msg
		}
	}
	return msg
}

func localizeFields(fe core.FieldErrors) map[string]string {
	out := make(map[string]string, len(fe))
	for field, msg := range fe {
		out[field] = localize(msg)
	}
	return out
}

// errorResponse maps a service error to its response. expected is false for
// failures the client could not have caused.
func errorResponse(err error) (resp *ResponseBuilder, expected bool) {
	var fe core.FieldErrors
	var conflict *services.ConflictError
	var unique *ledger.UniqueError

	switch {
	case errors.As(err, &fe):
		fields := localizeFields(fe)
		msg := MsgCheckFields
		if len(fields) == 1 {
			for _, m := range fields {
				msg = m
			}
		}
		return ValidationError(msg, fields), true
	case errors.As(err, &conflict):
		return ConflictError(conflict.Field, conflict.Message), true
	case errors.Is(err, services.ErrCategoryInUse):
		return ErrorResponse(http.StatusConflict, MsgCategoryInUse), true
	case errors.Is(err, identity.ErrInvalidCredentials):
		return UnauthorizedError(MsgInvalidLogin), true
	case errors.Is(err, identity.ErrInvalidToken):
		return UnauthorizedError(MsgUnauthorized), true
	case errors.Is(err, identity.ErrWeakPassword):
		return ValidationError(services.MsgPasswordTooShort, map[string]string{"password": services.MsgPasswordTooShort}), true
	case errors.Is(err, identity.ErrEmailTaken):
		return ConflictError("email", services.MsgEmailTaken), true
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, services.ErrCategoryNotFound):
		return NotFoundError(MsgNotFound), true
	case errors.As(err, &unique):
		return ConflictError(unique.Field, MsgDuplicateData), true
	case errors.Is(err, ledger.ErrUniqueViolation):
		return ConflictError("", MsgDuplicateData), true
	case errors.Is(err, ledger.ErrForeignKeyViolation):
		return ErrorResponse(http.StatusConflict, MsgLinkedRecord), true
	case errors.Is(err, core.ErrValidation):
		return ValidationError(localize(err.Error()), nil), true
	default:
		return InternalServerError(MsgGenericError), false
	}
}

// writeError sends the response for err. Unexpected errors are logged with
// the entity involved; their details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, op, entity, id string) {
	resp, expected := errorResponse(err)
	logger := applog.FromContext(r.Context())
	if !expected {
		fields := applog.NewFields().
			WithUser(userID(r.Context())).
			WithEntity(entity, id)
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, op, fields)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldError, err.Error(),
			applog.FieldOperation, op,
			applog.FieldEntity, entity)
	}
	resp.Write(w)
}
