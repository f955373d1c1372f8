package main

import "github.com/andresmejia3/keyredact/cmd"

func main() {
	cmd.Execute()
}
