// Package main is the entry point for the CallInsight dialog analyzer service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	analyzer "github.com/kart-io/callinsight/internal/analyzer"
)

func main() {
	analyzer.NewApp().Run()
}
