// Command backoffice админка контента: REST API, терминальный просмотр,
// разовые операции над записями и тестовый удалённый сервис.
package main

import (
	"fmt"
	"os"
)

// version подставляется при сборке: -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
