// Package main is the entry point for the sentinel-scholar service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/sentinel-scholar/internal/scholar"
)

func main() {
	scholar.NewApp().Run()
}
