// Command docmind is the entry point for the DocMind support assistant.
// It ingests business documents into a per-tenant knowledge base and
// answers customer questions from them via the CLI.
package main

import (
	"fmt"
	"os"

	"github.com/docmind-ai/docmind-go/cmd/docmind/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
