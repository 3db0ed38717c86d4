package main

import "github.com/kumarabd/ingestion-plane/miner/internal/cli"

func main() {
	cli.Execute()
}
