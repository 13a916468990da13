package main

import "insider-alerts/internal/cli"

func main() {
	cli.Execute()
}
