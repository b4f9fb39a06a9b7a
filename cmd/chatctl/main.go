package main

import "github.com/karthiknish/aroosi-sub016/cmd/chatctl/cmd"

func main() {
	cmd.Execute()
}
