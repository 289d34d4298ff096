package main

import "github.com/igorvidecnik/databox-integration/cmd"

func main() {
	cmd.Execute()
}
