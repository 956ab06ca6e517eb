package main

import (
	"fmt"
	"os"

	"github.com/blockedby/survey-portal/internal/catalog"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("No catalog files to check.")
		os.Exit(0)
	}

	failed := false
	for _, path := range os.Args[1:] {
		cat, err := catalog.Load(path)
		if err != nil {
			fmt.Printf("❌ %s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("✅ %s is valid (%d questions, default %s)\n", path, len(cat.Questions()), cat.DefaultQuestion())
	}

	if failed {
		os.Exit(1)
	}
}
