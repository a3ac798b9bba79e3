package main

import "sunobot/cmd"

func main() {
	cmd.Execute()
}
