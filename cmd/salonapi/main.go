package main

import "github.com/salonbook/salonapi/cmd/salonapi/cmd"

func main() {
	cmd.Execute()
}
