package main

import "github.com/tavinathanson/imgtsero/cmd"

func main() {
	cmd.Execute()
}
