package main

import "github.com/sigpress/pdfsigner/cli"

func main() {
	cli.Run()
}
