package main

import "github.com/vsmm-world/userapi/cmd"

func main() {
	cmd.Execute()
}
