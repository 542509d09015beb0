package main

import "github.com/KaramelBytes/airlens-cli/cmd"

func main() {
	cmd.Execute()
}
