package main

import "github.com/peteraglen/spark-go-client/internal/cli"

var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
