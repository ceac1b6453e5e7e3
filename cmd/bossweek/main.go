package main

import "bossweek/cmd/bossweek/root"

func main() {
	root.Execute()
}
