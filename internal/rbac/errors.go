package rbac

import "errors"

var (
	// ErrPermissionNotFound indica permissão fora do catálogo.
	ErrPermissionNotFound = errors.New("permissão não encontrada")
	// ErrInvalidPermission indica nome de permissão malformado.
	ErrInvalidPermission = errors.New("nome de permissão inválido")
	// ErrUserNotFound indica usuário inexistente.
	ErrUserNotFound = errors.New("usuário não encontrado")
	// ErrInvalidRole indica papel fora do enum.
	ErrInvalidRole = errors.New("papel inválido")
)
