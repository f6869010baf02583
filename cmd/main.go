package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  repopal serve   - Start the repopal agent server")
		fmt.Println("  repopal check   - Check if the server is running")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = handleServe()

	case "check":
		err = handleCheck()

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
