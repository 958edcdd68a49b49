package main

import (
	"testing"

	"github.com/stratus-cloud/stratus/internal/app"
	_ "github.com/stratus-cloud/stratus/internal/testing/guard"
)

func TestMainExitsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("test mode should be forced by the guard import")
	}
	// Returns immediately without touching Postgres, Redis or SMTP.
	main()
}
