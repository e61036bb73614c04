package service

import "errors"

var (
	// ErrInvalidCredentials indica falha na autenticação (mensagem única para identificador e senha).
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrTooManyAttempts indica bloqueio temporário após tentativas seguidas.
	ErrTooManyAttempts = errors.New("muitas tentativas de login, tente novamente mais tarde")
	// ErrConflict indica e-mail, CPF ou horário já em uso.
	ErrConflict = errors.New("conflito com registro existente")
	// ErrValidation indica entrada inconsistente com as regras de negócio.
	ErrValidation = errors.New("dados inválidos")
)
