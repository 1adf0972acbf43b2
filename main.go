package main

import "github.com/RyanBlaney/spectral-cluster/cmd"

func main() {
	cmd.Execute()
}
