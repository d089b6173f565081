package main

import "github.com/plantops/equipment-health/cmd"

func main() {
	cmd.Execute()
}
