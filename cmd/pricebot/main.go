package main

import "pricebot/internal/cli"

func main() {
	cli.Execute()
}
