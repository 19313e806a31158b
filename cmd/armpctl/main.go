// Command armpctl is the terminal front end of the access request portal.
package main

import (
	"errors"
	"fmt"
	"os"

	"armp/internal/observability"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	observability.InitLogger("development", envOr("LOG_LEVEL", "warn"), os.Stderr)

	a := newApp(os.Stdout, os.Stderr, os.Stdin)
	if err := a.root().Execute(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, errHelpShown) {
			return
		}
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
