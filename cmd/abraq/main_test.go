package main

import (
	"testing"

	"github.com/abraq/abraq-accounts/internal/app"
	_ "github.com/abraq/abraq-accounts/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("expected test mode to be enabled")
	}
	main()
}
