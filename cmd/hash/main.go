// Package main is a utility for generating bcrypt hashes of passwords. The
// backend stores only bcrypt hashes — never plaintext passwords — so this tool
// is used when manually seeding or repairing user records in the database
// without running the full server.
package main

import (
	"fmt"
	"os"

	"github.com/libreria/libreria-backend/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hash <password>")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
