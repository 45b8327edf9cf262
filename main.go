package main

import "github.com/RamXX/plansync/cmd"

func main() {
	cmd.Execute()
}
