package main

import (
	"os"
)

// @title           Fleet Operations API
// @version         1.0
// @description     Rider onboarding, role based access control and back office administration.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
