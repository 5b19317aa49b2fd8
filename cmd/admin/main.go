package main

import (
	"fmt"
	"os"

	tool "github.com/sandeepkv93/observation-service/internal/tools/admin"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(3)
	}
}
