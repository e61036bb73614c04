package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/agendasaude/api/internal/auth"
)

// hashpass gera o hash argon2id de uma senha ou confere uma senha contra um hash existente.
// Sem argumento posicional, a senha é lida da entrada padrão.
func main() {
	verify := flag.String("verify", "", "hash a conferir (argon2id ou bcrypt)")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "uso: hashpass [-verify hash] <senha>  (ou senha via stdin)")
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if *verify != "" {
		ok, err := auth.Verify(password, *verify)
		if err != nil {
			fmt.Fprintf(os.Stderr, "erro ao verificar: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("senha não confere")
			os.Exit(2)
		}
		fmt.Println("senha confere")
		return
	}

	hash, err := auth.Hash(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "erro ao gerar hash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
