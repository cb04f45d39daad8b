package main

import "github.com/jrsteele09/go-auth-session/cmd/eduauth/cmd"

func main() {
	cmd.Execute()
}
