package main

import "github.com/why-xn/infradesk/internal/cli"

func main() {
	cli.Execute()
}
