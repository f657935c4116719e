package main

import "datasetdedup/cmd"

func main() {
	cmd.Execute()
}
