package main

import "github.com/jmehdipour/activitylog-webhook/cmd"

func main() {
	cmd.Execute()
}
