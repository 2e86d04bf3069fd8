package main

import "github.com/MeKo-Tech/marginalia/cmd/marginalia/cmd"

func main() {
	cmd.Execute()
}
