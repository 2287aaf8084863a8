package main

import "github.com/bombsimon/tweetrelay/internal/cli"

func main() {
	cli.Execute()
}
