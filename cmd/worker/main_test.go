package main

import (
	"testing"

	"github.com/stratus-cloud/stratus/internal/app"
	_ "github.com/stratus-cloud/stratus/internal/testing/guard"
)

func TestWorkerExitsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("test mode should be forced by the guard import")
	}
	main()
}
