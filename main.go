package main

import "githubevents/cmd"

func main() {
	cmd.Execute()
}
