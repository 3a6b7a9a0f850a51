package main

import "github.com/vibast-solutions/ms-go-ajo/cmd"

func main() {
	cmd.Execute()
}
