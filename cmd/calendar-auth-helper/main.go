package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"todo-assistant/internal/calendar"
	"todo-assistant/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: calendar-auth-helper <credentials.json>")
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	credentialsData, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read credentials file: %v", err)
	}

	ctx := context.Background()
	cal := calendar.New(calendar.Options{
		CredentialsPath: cfg.GoogleCredentialsPath,
		TokenPath:       cfg.GoogleTokenPath,
		TimeZone:        cfg.GoogleTimeZone,
	})

	authURL, err := cal.Configure(ctx, string(credentialsData))
	if err != nil {
		log.Fatalf("Failed to configure Google Calendar: %v", err)
	}
	if authURL == "" {
		fmt.Printf("✅ Stored token at %s is still valid, nothing to do\n", cfg.GoogleTokenPath)
		return
	}

	fmt.Printf("🔗 Google Calendar OAuth2 Authorization Helper\n")
	fmt.Printf("==============================================\n")
	fmt.Printf("1. Open this URL in your browser:\n")
	fmt.Printf("   %s\n\n", authURL)
	fmt.Printf("2. Authorize the application\n")
	fmt.Printf("3. Copy the authorization code and enter it below\n\n")
	fmt.Printf("📝 Enter the authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		log.Fatalf("Failed to read authorization code: %v", err)
	}

	if err := cal.Authenticate(ctx, authCode); err != nil {
		log.Fatalf("Failed to authenticate: %v", err)
	}

	fmt.Printf("\n✅ Successfully obtained tokens!\n")
	fmt.Printf("==============================================\n")
	fmt.Printf("Credentials saved to %s\n", cfg.GoogleCredentialsPath)
	fmt.Printf("Token saved to %s\n", cfg.GoogleTokenPath)
	fmt.Printf("The server will pick them up on next start.\n")
}
